// Package report renders scan findings as a markdown document.
//
// Rendering is a pure function of the findings list and header metadata:
// identical inputs produce byte-identical output.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
)

// maxCodeLength is the per-finding code excerpt limit.
const maxCodeLength = 500

// Meta holds report header metadata. GeneratedAt is injected by the caller so
// rendering stays deterministic.
type Meta struct {
	FileName    string
	GeneratedAt time.Time
	Threshold   int
}

// Render produces the full markdown report: header, summary bands, then one
// entry per finding sorted ascending by score with sequence number breaking
// ties.
func Render(meta Meta, findings []models.Finding) string {
	summary := models.Summarize(findings, meta.Threshold)

	var b strings.Builder
	fmt.Fprintf(&b, "# Macro Security Analysis Report\n\n")
	fmt.Fprintf(&b, "**File:** %s\n", meta.FileName)
	fmt.Fprintf(&b, "**Scan Date:** %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Total Items Found:** %d\n", summary.Total)
	fmt.Fprintf(&b, "**Removal Threshold:** %d\n\n", meta.Threshold)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Malicious (1-3):** %d\n", summary.Malicious)
	fmt.Fprintf(&b, "- **Suspicious (4-6):** %d\n", summary.Suspicious)
	fmt.Fprintf(&b, "- **Potentially Risky (7-9):** %d\n", summary.Risky)
	fmt.Fprintf(&b, "- **Safe (10):** %d\n", summary.Safe)
	fmt.Fprintf(&b, "- **Items to be removed (score < %d):** %d\n\n", meta.Threshold, summary.BelowThreshold)

	b.WriteString("## Detailed Findings\n\n")
	for _, f := range sortedByScore(findings) {
		fmt.Fprintf(&b, "### Item #%d: %s\n\n", f.SequenceNumber, f.Location)
		fmt.Fprintf(&b, "**Score:** %d/10\n\n", f.Score)
		fmt.Fprintf(&b, "**Analysis:** %s\n\n", f.Analysis)
		fmt.Fprintf(&b, "**Code:**\n```\n%s", excerpt(f.Code))
		b.WriteString("\n```\n\n")
		b.WriteString("---\n\n")
	}
	return b.String()
}

// sortedByScore returns a copy of findings ordered ascending by score, ties
// broken by sequence number.
func sortedByScore(findings []models.Finding) []models.Finding {
	sorted := make([]models.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})
	return sorted
}

// excerpt truncates code to maxCodeLength with an explicit marker.
func excerpt(code string) string {
	if len(code) <= maxCodeLength {
		return code
	}
	return code[:maxCodeLength] + "\n... (truncated)"
}
