package sanitize

import (
	"fmt"
	"log"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/odf"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/parser"
)

// redactedStyleName is the automatic cell style injected into sanitized ODS
// documents to flag redacted cells.
const redactedStyleName = "RedactedCell"

// cellKey addresses one cell for redaction lookup.
type cellKey struct {
	sheet string
	col   int
	row   int
}

// Composite writes a sanitized copy of an ODS document to dstPath and returns
// the number of cells redacted. The document is re-loaded from the original
// so a failed rewrite can never corrupt the source.
func Composite(srcPath, dstPath string, findings []models.Finding, threshold int) (int, error) {
	doc, err := odf.Load(srcPath)
	if err != nil {
		return 0, fmt.Errorf("reload %s: %w", srcPath, err)
	}

	targets := map[cellKey]int{}
	for _, finding := range findings {
		if !finding.Redactable(threshold) {
			continue
		}
		origin := finding.Origin.(models.CellOrigin)
		targets[cellKey{origin.Sheet, origin.Column, origin.Row}] = finding.SequenceNumber
	}

	redacted := 0
	if len(targets) > 0 {
		ensureRedactedStyle(doc.Content)
		// The walk shares the extractor's coordinate accounting, so every
		// recorded address maps back to its cell element.
		parser.WalkCompositeCells(doc.Content, func(sheet string, col, row int, cell *odf.Node) {
			item, ok := targets[cellKey{sheet, col, row}]
			if !ok {
				return
			}
			redactCell(cell, item)
			redacted++
		})
		if redacted < len(targets) {
			log.Printf("[Sanitizer] %d of %d redaction targets not found in document", len(targets)-redacted, len(targets))
		}
	}

	if err := doc.Save(dstPath); err != nil {
		return 0, fmt.Errorf("save %s: %w", dstPath, err)
	}
	return redacted, nil
}

// redactCell strips the formula and value attributes, replaces the cell text
// with the placeholder and flags the cell with the redaction style.
func redactCell(cell *odf.Node, itemNumber int) {
	cell.RemoveAttr(odf.NSTable, "formula")
	cell.RemoveAttr(odf.NSOffice, "value")
	cell.RemoveAttr(odf.NSOffice, "value-type")
	cell.RemoveChildren(odf.NSText, "p")

	p := odf.NewElement(odf.NSText, "p")
	p.AppendChild(odf.NewText(RedactedText(itemNumber)))
	cell.AppendChild(p)
	cell.SetAttr(odf.NSTable, "style-name", redactedStyleName)
}

// ensureRedactedStyle injects the yellow-background cell style into the
// document's automatic styles, creating the styles section before the body
// when the document has none.
func ensureRedactedStyle(content *odf.Node) {
	styles := content.FindFirst(odf.NSOffice, "automatic-styles")
	if styles == nil {
		styles = odf.NewElement(odf.NSOffice, "automatic-styles")
		insertBeforeBody(content, styles)
	}
	for _, s := range styles.FindAll(odf.NSStyle, "style") {
		if s.Attr(odf.NSStyle, "name") == redactedStyleName {
			return
		}
	}
	style := odf.NewElement(odf.NSStyle, "style")
	style.SetAttr(odf.NSStyle, "name", redactedStyleName)
	style.SetAttr(odf.NSStyle, "family", "table-cell")
	props := odf.NewElement(odf.NSStyle, "table-cell-properties")
	props.SetAttr(odf.NSFo, "background-color", "#"+redactedFill)
	style.AppendChild(props)
	styles.AppendChild(style)
}

// insertBeforeBody places a node directly before office:body so the content
// schema order is preserved.
func insertBeforeBody(content *odf.Node, node *odf.Node) {
	for i, c := range content.Children {
		if !c.IsText() && c.Name.Space == odf.NSOffice && c.Name.Local == "body" {
			content.Children = append(content.Children[:i], append([]*odf.Node{node}, content.Children[i:]...)...)
			return
		}
	}
	content.AppendChild(node)
}
