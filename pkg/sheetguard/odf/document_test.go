package odf

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const testContent = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
  <office:body>
    <office:spreadsheet>
      <table:table table:name="Sheet1">
        <table:table-row>
          <table:table-cell table:formula="of:=SUM([.A1];[.B1])"><text:p>3</text:p></table:table-cell>
          <table:table-cell><text:p>hello &amp; goodbye</text:p></table:table-cell>
        </table:table-row>
      </table:table>
    </office:spreadsheet>
  </office:body>
</office:document-content>`

// writeTestODS builds a minimal ODS archive in dir and returns its path.
func writeTestODS(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.ods")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	zw := zip.NewWriter(out)
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("write mimetype: %v", err)
	}
	if _, err := mt.Write([]byte(Mimetype)); err != nil {
		t.Fatalf("write mimetype: %v", err)
	}
	cw, err := zw.Create("content.xml")
	if err != nil {
		t.Fatalf("write content.xml: %v", err)
	}
	if _, err := cw.Write([]byte(content)); err != nil {
		t.Fatalf("write content.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestParseAndAttrs(t *testing.T) {
	root, err := Parse([]byte(testContent))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if root.Name.Space != NSOffice || root.Name.Local != "document-content" {
		t.Fatalf("unexpected root: %+v", root.Name)
	}

	cells := root.FindAll(NSTable, "table-cell")
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if got := cells[0].Attr(NSTable, "formula"); got != "of:=SUM([.A1];[.B1])" {
		t.Errorf("formula attr = %q", got)
	}
	if got := cells[1].PlainText(); got != "hello & goodbye" {
		t.Errorf("PlainText = %q", got)
	}

	table := root.FindFirst(NSTable, "table")
	if table == nil {
		t.Fatal("table not found")
	}
	if got := table.Attr(NSTable, "name"); got != "Sheet1" {
		t.Errorf("table name = %q", got)
	}
}

func TestAttrMutation(t *testing.T) {
	cell := NewElement(NSTable, "table-cell")
	cell.SetAttr(NSTable, "formula", "of:=1+1")
	if got := cell.Attr(NSTable, "formula"); got != "of:=1+1" {
		t.Fatalf("Attr after SetAttr = %q", got)
	}
	cell.SetAttr(NSTable, "formula", "of:=2+2")
	if got := cell.Attr(NSTable, "formula"); got != "of:=2+2" {
		t.Fatalf("Attr after overwrite = %q", got)
	}
	if len(cell.Attrs) != 1 {
		t.Fatalf("SetAttr duplicated attribute: %d entries", len(cell.Attrs))
	}
	cell.RemoveAttr(NSTable, "formula")
	if got := cell.Attr(NSTable, "formula"); got != "" {
		t.Fatalf("Attr after RemoveAttr = %q", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	root, err := Parse([]byte(testContent))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	cells := again.FindAll(NSTable, "table-cell")
	if len(cells) != 2 {
		t.Fatalf("round trip lost cells: got %d", len(cells))
	}
	if got := cells[0].Attr(NSTable, "formula"); got != "of:=SUM([.A1];[.B1])" {
		t.Errorf("round trip formula = %q", got)
	}
	if got := cells[1].PlainText(); got != "hello & goodbye" {
		t.Errorf("round trip text = %q", got)
	}
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	src := writeTestODS(t, dir, testContent)

	doc, err := Load(src)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Content == nil {
		t.Fatal("Load returned nil content")
	}

	dst := filepath.Join(dir, "out.ods")
	if err := doc.Save(dst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The mimetype entry must stay first and uncompressed.
	zr, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("reopen saved file: %v", err)
	}
	defer zr.Close()
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		t.Fatal("mimetype is not the first archive entry")
	}
	if zr.File[0].Method != zip.Store {
		t.Errorf("mimetype method = %d, want Store", zr.File[0].Method)
	}

	reloaded, err := Load(dst)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := len(reloaded.Content.FindAll(NSTable, "table-cell")); got != 2 {
		t.Errorf("reloaded cells = %d, want 2", got)
	}
}

func TestLoadMissingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ods")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("mimetype")
	w.Write([]byte(Mimetype))
	zw.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for archive without content.xml")
	}
}
