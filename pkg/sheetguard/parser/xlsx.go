// Package parser discovers code fragments in spreadsheet containers.
package parser

import (
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
)

// ExtractCellGridFormulas walks every sheet of an opened workbook and returns
// formula fragments in sheet, row, column order. A fragment is any cell with
// a formula, or any textual cell whose literal value begins with "=".
// Sequence numbers are left unset; the scanner assigns them.
func ExtractCellGridFormulas(f *excelize.File) ([]models.Fragment, error) {
	var fragments []models.Fragment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			// Fail-soft per sheet: an unwalkable sheet is logged and skipped.
			log.Printf("[Extractor] Skipping sheet %q: %v", sheet, err)
			continue
		}
		maxRow, maxCol := sheetBounds(f, sheet, rows)
		for r := 1; r <= maxRow; r++ {
			for c := 1; c <= maxCol; c++ {
				frag, ok := formulaAt(f, sheet, c, r)
				if ok {
					fragments = append(fragments, frag)
				}
			}
		}
	}
	return fragments, nil
}

// formulaAt inspects a single cell and returns its fragment, if any. Cell
// errors never abort the walk.
func formulaAt(f *excelize.File, sheet string, col, row int) (models.Fragment, bool) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		log.Printf("[Extractor] Invalid coordinates %s (%d,%d): %v", sheet, col, row, err)
		return models.Fragment{}, false
	}
	code := ""
	formula, err := f.GetCellFormula(sheet, cell)
	if err != nil {
		log.Printf("[Extractor] Skipping cell %s!%s: %v", sheet, cell, err)
		return models.Fragment{}, false
	}
	if formula != "" {
		code = "=" + strings.TrimPrefix(formula, "=")
	} else {
		value, err := f.GetCellValue(sheet, cell)
		if err != nil {
			log.Printf("[Extractor] Skipping cell %s!%s: %v", sheet, cell, err)
			return models.Fragment{}, false
		}
		if strings.HasPrefix(value, "=") {
			code = value
		}
	}
	if code == "" {
		return models.Fragment{}, false
	}
	return models.Fragment{
		Location: fmt.Sprintf("%s!%s", sheet, cell),
		Code:     code,
		Origin:   models.CellOrigin{Sheet: sheet, Column: col, Row: row},
	}, true
}

// sheetBounds returns the walk rectangle for a sheet as the union of the
// populated row data and the declared sheet dimension. Formula cells without
// cached values can sit past the last valued cell of a row, so the dimension
// is consulted as well.
func sheetBounds(f *excelize.File, sheet string, rows [][]string) (maxRow, maxCol int) {
	maxRow = len(rows)
	for _, row := range rows {
		if len(row) > maxCol {
			maxCol = len(row)
		}
	}
	if dim, err := f.GetSheetDimension(sheet); err == nil && dim != "" {
		refs := strings.Split(dim, ":")
		c, r, err := excelize.CellNameToCoordinates(refs[len(refs)-1])
		if err == nil {
			if r > maxRow {
				maxRow = r
			}
			if c > maxCol {
				maxCol = c
			}
		}
	}
	return maxRow, maxCol
}
