package parser

import (
	"fmt"
	"log"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/odf"
)

// ExtractCompositeFormulas walks the table tree of an ODF content document
// and returns one fragment per formula-bearing cell, in table, row, column
// order. The table:formula attribute is authoritative; cell text is ignored.
func ExtractCompositeFormulas(content *odf.Node) ([]models.Fragment, error) {
	var fragments []models.Fragment
	WalkCompositeCells(content, func(sheet string, col, row int, cell *odf.Node) {
		formula := cell.Attr(odf.NSTable, "formula")
		if formula == "" {
			return
		}
		letter, err := excelize.ColumnNumberToName(col)
		if err != nil {
			log.Printf("[Extractor] Skipping cell at %s row %d col %d: %v", sheet, row, col, err)
			return
		}
		fragments = append(fragments, models.Fragment{
			Location: fmt.Sprintf("%s!%s%d", sheet, letter, row),
			Code:     formula,
			Origin:   models.CellOrigin{Sheet: sheet, Column: col, Row: row},
		})
	})
	return fragments, nil
}

// WalkCompositeCells visits every cell element of every table under the
// content root, reporting 1-based coordinates that account for
// table:number-columns-repeated and table:number-rows-repeated runs. A
// repeated cell is visited once, at the coordinate of the run's first cell;
// the column counter still advances by the full run length so later cells
// keep exact addresses. Counters reset per table, never mid-walk.
//
// The extractor and the sanitizer share this traversal so a fragment's
// recorded address always maps back to the same cell element.
func WalkCompositeCells(content *odf.Node, visit func(sheet string, col, row int, cell *odf.Node)) {
	for _, table := range content.FindAll(odf.NSTable, "table") {
		sheet := table.Attr(odf.NSTable, "name")
		if sheet == "" {
			sheet = "Sheet"
		}
		row := 0
		for _, tr := range table.FindAll(odf.NSTable, "table-row") {
			row++
			col := 0
			for _, cell := range tr.Children {
				if cell.IsText() || cell.Name.Space != odf.NSTable {
					continue
				}
				if cell.Name.Local != "table-cell" && cell.Name.Local != "covered-table-cell" {
					continue
				}
				col++
				repeat := repeatCount(cell, "number-columns-repeated")
				visit(sheet, col, row, cell)
				col += repeat - 1
			}
			row += repeatCount(tr, "number-rows-repeated") - 1
		}
	}
}

// repeatCount reads a table repeat attribute, treating absent or malformed
// values as a single occurrence.
func repeatCount(n *odf.Node, attr string) int {
	raw := n.Attr(odf.NSTable, attr)
	if raw == "" {
		return 1
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		log.Printf("[Extractor] Ignoring malformed %s=%q", attr, raw)
		return 1
	}
	return count
}
