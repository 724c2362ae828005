// Package odf implements a minimal OpenDocument spreadsheet container model.
// It preserves the full content.xml element tree so a document can be loaded,
// selectively rewritten and saved without disturbing unrelated structure.
package odf

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// OpenDocument namespace URIs used by spreadsheet content.
const (
	NSOffice = "urn:oasis:names:tc:opendocument:xmlns:office:1.0"
	NSTable  = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"
	NSText   = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
	NSStyle  = "urn:oasis:names:tc:opendocument:xmlns:style:1.0"
	NSFo     = "urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
)

// Mimetype is the ODF spreadsheet media type stored as the archive's first,
// uncompressed entry.
const Mimetype = "application/vnd.oasis.opendocument.spreadsheet"

// ErrNoContent indicates the archive has no content.xml entry.
var ErrNoContent = errors.New("missing content.xml")

// standardPrefixes maps well-known namespace URIs to their conventional
// prefixes for serialization. Unknown namespaces get generated prefixes.
var standardPrefixes = map[string]string{
	NSOffice: "office",
	NSTable:  "table",
	NSText:   "text",
	NSStyle:  "style",
	NSFo:     "fo",
	"urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0":                      "number",
	"urn:oasis:names:tc:opendocument:xmlns:meta:1.0":                           "meta",
	"urn:oasis:names:tc:opendocument:xmlns:drawing:1.0":                        "draw",
	"urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0":                 "svg",
	"urn:oasis:names:tc:opendocument:xmlns:chart:1.0":                          "chart",
	"urn:oasis:names:tc:opendocument:xmlns:form:1.0":                           "form",
	"urn:oasis:names:tc:opendocument:xmlns:script:1.0":                         "script",
	"urn:oasis:names:tc:opendocument:xmlns:config:1.0":                         "config",
	"urn:org:documentfoundation:names:experimental:calc:xmlns:calcext:1.0":     "calcext",
	"urn:org:documentfoundation:names:experimental:office:xmlns:loext:1.0":     "loext",
	"http://www.w3.org/1999/xlink":                                             "xlink",
	"http://www.w3.org/1998/Math/MathML":                                       "math",
	"http://www.w3.org/2001/XMLSchema-instance":                                "xsi",
	"urn:oasis:names:tc:opendocument:xmlns:of:1.2":                             "of",
	"urn:oasis:names:tc:opendocument:xmlns:presentation:1.0":                   "presentation",
	"urn:oasis:names:tc:opendocument:xmlns:smil-compatible:1.0":                "smil",
	"urn:oasis:names:tc:opendocument:xmlns:animation:1.0":                      "anim",
	"urn:oasis:names:tc:opendocument:xmlns:dr3d:1.0":                           "dr3d",
}

// Node is one element or text node of the content tree. Text nodes have an
// empty Name and carry their character data in Text.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// NewElement creates an element node in the given namespace.
func NewElement(space, local string) *Node {
	return &Node{Name: xml.Name{Space: space, Local: local}}
}

// NewText creates a text node.
func NewText(s string) *Node {
	return &Node{Text: s}
}

// IsText reports whether the node is a text node.
func (n *Node) IsText() bool {
	return n.Name.Local == ""
}

// Attr returns the value of the named attribute, or "" when absent.
func (n *Node) Attr(space, local string) string {
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces the named attribute.
func (n *Node) SetAttr(space, local, value string) {
	for i, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Space: space, Local: local}, Value: value})
}

// RemoveAttr deletes the named attribute if present.
func (n *Node) RemoveAttr(space, local string) {
	for i, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// AppendChild appends a child node.
func (n *Node) AppendChild(c *Node) {
	n.Children = append(n.Children, c)
}

// RemoveChildren deletes all direct children with the given element name.
func (n *Node) RemoveChildren(space, local string) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Name.Space == space && c.Name.Local == local {
			continue
		}
		kept = append(kept, c)
	}
	n.Children = kept
}

// FindAll returns all descendant elements with the given name in document
// order, including the node itself when it matches.
func (n *Node) FindAll(space, local string) []*Node {
	var found []*Node
	if n.Name.Space == space && n.Name.Local == local {
		found = append(found, n)
	}
	for _, c := range n.Children {
		if c.IsText() {
			continue
		}
		found = append(found, c.FindAll(space, local)...)
	}
	return found
}

// FindFirst returns the first descendant element with the given name, or nil.
func (n *Node) FindFirst(space, local string) *Node {
	all := n.FindAll(space, local)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// PlainText returns the concatenated character data of the node's subtree.
func (n *Node) PlainText() string {
	if n.IsText() {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.PlainText())
	}
	return b.String()
}

// Parse builds a node tree from raw XML. Namespace declarations are dropped
// on parse; Marshal re-declares every namespace in use.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				n.Attrs = append(n.Attrs, a)
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("parse xml: multiple root elements")
				}
				root = n
			} else {
				stack[len(stack)-1].AppendChild(n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("parse xml: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].AppendChild(NewText(string(t)))
			}
		}
	}
	if root == nil {
		return nil, errors.New("parse xml: empty document")
	}
	return root, nil
}

// Marshal serializes a node tree back to XML. All namespaces used anywhere in
// the tree are declared on the root element.
func Marshal(root *Node) ([]byte, error) {
	prefixes, ordered := assignPrefixes(root)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := writeNode(&buf, root, prefixes, ordered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// assignPrefixes maps every namespace URI in the tree to a prefix and returns
// the URIs in a stable declaration order.
func assignPrefixes(root *Node) (map[string]string, []string) {
	seen := map[string]bool{}
	collectNamespaces(root, seen)
	prefixes := map[string]string{}
	var ordered []string
	for uri := range seen {
		ordered = append(ordered, uri)
	}
	sort.Strings(ordered)
	generated := 0
	for _, uri := range ordered {
		if p, ok := standardPrefixes[uri]; ok {
			prefixes[uri] = p
			continue
		}
		prefixes[uri] = fmt.Sprintf("ns%d", generated)
		generated++
	}
	return prefixes, ordered
}

func collectNamespaces(n *Node, seen map[string]bool) {
	if n.IsText() {
		return
	}
	if n.Name.Space != "" {
		seen[n.Name.Space] = true
	}
	for _, a := range n.Attrs {
		if a.Name.Space != "" {
			seen[a.Name.Space] = true
		}
	}
	for _, c := range n.Children {
		collectNamespaces(c, seen)
	}
}

func qualified(name xml.Name, prefixes map[string]string) string {
	if name.Space == "" {
		return name.Local
	}
	return prefixes[name.Space] + ":" + name.Local
}

func writeNode(buf *bytes.Buffer, n *Node, prefixes map[string]string, declare []string) error {
	if n.IsText() {
		return xml.EscapeText(buf, []byte(n.Text))
	}
	buf.WriteByte('<')
	buf.WriteString(qualified(n.Name, prefixes))
	for _, uri := range declare {
		fmt.Fprintf(buf, ` xmlns:%s="%s"`, prefixes[uri], uri)
	}
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(qualified(a.Name, prefixes))
		buf.WriteString(`="`)
		if err := xml.EscapeText(buf, []byte(a.Value)); err != nil {
			return err
		}
		buf.WriteByte('"')
	}
	if len(n.Children) == 0 {
		buf.WriteString("/>")
		return nil
	}
	buf.WriteByte('>')
	for _, c := range n.Children {
		if err := writeNode(buf, c, prefixes, nil); err != nil {
			return err
		}
	}
	buf.WriteString("</")
	buf.WriteString(qualified(n.Name, prefixes))
	buf.WriteByte('>')
	return nil
}

// entry is one archive member kept in original order.
type entry struct {
	name string
	data []byte
}

// Document is an opened ODF spreadsheet. Content holds the parsed content.xml
// tree; all other archive entries are carried through untouched on save.
type Document struct {
	Content *Node
	entries []entry
}

// Load opens an ODF spreadsheet file.
func Load(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	doc := &Document{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", zf.Name, err)
		}
		doc.entries = append(doc.entries, entry{name: zf.Name, data: data})
		if zf.Name == "content.xml" {
			doc.Content, err = Parse(data)
			if err != nil {
				return nil, fmt.Errorf("parse content.xml: %w", err)
			}
		}
	}
	if doc.Content == nil {
		return nil, ErrNoContent
	}
	return doc, nil
}

// Save writes the document to path. The mimetype entry is written first and
// uncompressed as the ODF packaging rules require; content.xml is
// re-serialized from the tree; every other entry is copied through.
func (d *Document) Save(path string) error {
	content, err := Marshal(d.Content)
	if err != nil {
		return fmt.Errorf("serialize content.xml: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, e := range d.entries {
		data := e.data
		if e.name == "content.xml" {
			data = content
		}
		method := zip.Deflate
		if e.name == "mimetype" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	return zw.Close()
}
