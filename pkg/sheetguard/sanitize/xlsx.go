// Package sanitize writes redacted copies of scanned spreadsheets.
//
// Sanitization always starts from the untouched original: the source file is
// re-opened and only the copy at the destination path is ever written. A
// finding is redacted when it scores strictly below the threshold and carries
// a cell address; macro modules are reported upstream but never rewritten.
package sanitize

import (
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
)

// redactedFill is the background color marking redacted cells.
const redactedFill = "FFFF00"

// RedactedText is the placeholder written into a redacted cell.
func RedactedText(itemNumber int) string {
	return fmt.Sprintf("CODE REMOVED: Item #%d", itemNumber)
}

// CellGrid writes a sanitized copy of an xlsx/xlsm workbook to dstPath and
// returns the number of cells redacted.
func CellGrid(srcPath, dstPath string, findings []models.Finding, threshold int) (int, error) {
	f, err := excelize.OpenFile(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer f.Close()

	styleID, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{redactedFill}},
	})
	if err != nil {
		return 0, fmt.Errorf("create redaction style: %w", err)
	}

	redacted := 0
	for _, finding := range findings {
		if !finding.Redactable(threshold) {
			continue
		}
		origin := finding.Origin.(models.CellOrigin)
		cell, err := excelize.CoordinatesToCellName(origin.Column, origin.Row)
		if err != nil {
			log.Printf("[Sanitizer] Skipping item %d: %v", finding.SequenceNumber, err)
			continue
		}
		// Clear the formula before writing the placeholder so the cell no
		// longer evaluates.
		if err := f.SetCellFormula(origin.Sheet, cell, ""); err != nil {
			log.Printf("[Sanitizer] Item %d: clear formula %s!%s: %v", finding.SequenceNumber, origin.Sheet, cell, err)
			continue
		}
		if err := f.SetCellValue(origin.Sheet, cell, RedactedText(finding.SequenceNumber)); err != nil {
			log.Printf("[Sanitizer] Item %d: write placeholder %s!%s: %v", finding.SequenceNumber, origin.Sheet, cell, err)
			continue
		}
		if err := f.SetCellStyle(origin.Sheet, cell, cell, styleID); err != nil {
			log.Printf("[Sanitizer] Item %d: style %s!%s: %v", finding.SequenceNumber, origin.Sheet, cell, err)
		}
		redacted++
	}

	if err := f.SaveAs(dstPath); err != nil {
		return 0, fmt.Errorf("save %s: %w", dstPath, err)
	}
	return redacted, nil
}
