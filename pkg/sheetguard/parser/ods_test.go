package parser

import (
	"testing"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/odf"
)

func parseContent(t *testing.T, xml string) *odf.Node {
	t.Helper()
	root, err := odf.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return root
}

const contentHeader = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:spreadsheet>`

const contentFooter = `</office:spreadsheet></office:body></office:document-content>`

func TestExtractCompositeFormulas(t *testing.T) {
	root := parseContent(t, contentHeader+
		`<table:table table:name="Sheet1">`+
		`<table:table-row>`+
		`<table:table-cell><text:p>plain</text:p></table:table-cell>`+
		`<table:table-cell table:formula="of:=SUM([.A1];[.B1])"><text:p>3</text:p></table:table-cell>`+
		`</table:table-row>`+
		`<table:table-row>`+
		`<table:table-cell table:formula="of:=NOW()"/>`+
		`</table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %+v", len(fragments), fragments)
	}

	if fragments[0].Location != "Sheet1!B1" {
		t.Errorf("fragment 0 location = %q, want Sheet1!B1", fragments[0].Location)
	}
	if fragments[0].Code != "of:=SUM([.A1];[.B1])" {
		t.Errorf("fragment 0 code = %q", fragments[0].Code)
	}
	origin := fragments[0].Origin.(models.CellOrigin)
	if origin.Sheet != "Sheet1" || origin.Column != 2 || origin.Row != 1 {
		t.Errorf("fragment 0 origin = %+v", origin)
	}
	if fragments[1].Location != "Sheet1!A2" {
		t.Errorf("fragment 1 location = %q, want Sheet1!A2", fragments[1].Location)
	}
}

func TestExtractCompositeSkipsLongEmptyRuns(t *testing.T) {
	// A 500-column empty run must not materialize 500 fragments, and the
	// column counter must still account for the full run.
	root := parseContent(t, contentHeader+
		`<table:table table:name="Sheet1">`+
		`<table:table-row>`+
		`<table:table-cell table:number-columns-repeated="500"/>`+
		`<table:table-cell table:formula="of:=NOW()"/>`+
		`</table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(fragments))
	}
	origin := fragments[0].Origin.(models.CellOrigin)
	if origin.Column != 501 || origin.Row != 1 {
		t.Errorf("origin = %+v, want column 501 row 1", origin)
	}
}

func TestExtractCompositeFormulaBearingRunNotSkipped(t *testing.T) {
	root := parseContent(t, contentHeader+
		`<table:table table:name="Sheet1">`+
		`<table:table-row>`+
		`<table:table-cell table:number-columns-repeated="150" table:formula="of:=RAND()"/>`+
		`</table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment for the run's first cell, got %d", len(fragments))
	}
	if fragments[0].Location != "Sheet1!A1" {
		t.Errorf("location = %q, want Sheet1!A1", fragments[0].Location)
	}
}

func TestExtractCompositeMalformedRepeat(t *testing.T) {
	// A non-parseable repeat count degrades to a single cell; the walk
	// continues.
	root := parseContent(t, contentHeader+
		`<table:table table:name="Sheet1">`+
		`<table:table-row>`+
		`<table:table-cell table:number-columns-repeated="banana"/>`+
		`<table:table-cell table:formula="of:=NOW()"/>`+
		`</table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(fragments))
	}
	origin := fragments[0].Origin.(models.CellOrigin)
	if origin.Column != 2 {
		t.Errorf("column = %d, want 2", origin.Column)
	}
}

func TestExtractCompositeRowRepeats(t *testing.T) {
	root := parseContent(t, contentHeader+
		`<table:table table:name="Sheet1">`+
		`<table:table-row table:number-rows-repeated="10"/>`+
		`<table:table-row>`+
		`<table:table-cell table:formula="of:=NOW()"/>`+
		`</table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(fragments))
	}
	if fragments[0].Location != "Sheet1!A11" {
		t.Errorf("location = %q, want Sheet1!A11", fragments[0].Location)
	}
}

func TestExtractCompositeCountersResetPerTable(t *testing.T) {
	root := parseContent(t, contentHeader+
		`<table:table table:name="First">`+
		`<table:table-row><table:table-cell table:number-columns-repeated="500"/></table:table-row>`+
		`<table:table-row><table:table-cell table:formula="of:=NOW()"/></table:table-row>`+
		`</table:table>`+
		`<table:table table:name="Second">`+
		`<table:table-row><table:table-cell table:formula="of:=TODAY()"/></table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}
	if fragments[0].Location != "First!A2" {
		t.Errorf("fragment 0 location = %q, want First!A2", fragments[0].Location)
	}
	if fragments[1].Location != "Second!A1" {
		t.Errorf("fragment 1 location = %q, want Second!A1", fragments[1].Location)
	}
}

func TestExtractCompositeDefaultSheetName(t *testing.T) {
	root := parseContent(t, contentHeader+
		`<table:table>`+
		`<table:table-row><table:table-cell table:formula="of:=NOW()"/></table:table-row>`+
		`</table:table>`+
		contentFooter)

	fragments, err := ExtractCompositeFormulas(root)
	if err != nil {
		t.Fatalf("ExtractCompositeFormulas failed: %v", err)
	}
	if len(fragments) != 1 || fragments[0].Location != "Sheet!A1" {
		t.Fatalf("fragments = %+v, want one at Sheet!A1", fragments)
	}
}
