// Package models defines the fragment and finding data structures shared by
// extraction, classification, reporting and sanitization.
package models

// Origin identifies where a fragment was discovered. Exactly one concrete
// variant applies to any fragment: CellOrigin for formulas, ModuleOrigin for
// macro modules.
type Origin interface {
	origin()
}

// CellOrigin addresses a single spreadsheet cell. Column and Row are 1-based.
type CellOrigin struct {
	Sheet  string
	Column int
	Row    int
}

func (CellOrigin) origin() {}

// ModuleOrigin names a macro module. Macro code has no cell address.
type ModuleOrigin struct {
	Module string
}

func (ModuleOrigin) origin() {}

// Fragment is one discovered unit of formula or macro code.
type Fragment struct {
	// SequenceNumber is assigned in discovery order, starting at 1.
	// Macro fragments come before formula fragments.
	SequenceNumber int
	// Location is a human-readable address, e.g. "Sheet1!A1" or
	// "Macro Module: Module1".
	Location string
	// Code is the raw fragment text.
	Code string
	// Origin is the typed address of the fragment.
	Origin Origin
}

// Finding is a fragment after classification. Findings are immutable once
// created.
type Finding struct {
	Fragment
	// Score ranges 1-10: 1 is certainly malicious, 10 is certainly safe.
	Score int
	// Analysis is the classifier's rationale for the score.
	Analysis string
}

// Redactable reports whether the finding would be redacted at the given
// threshold. Only cell-addressed findings scoring strictly below the
// threshold are redacted; macro modules are reported but never rewritten.
func (f Finding) Redactable(threshold int) bool {
	if f.Score >= threshold {
		return false
	}
	_, ok := f.Origin.(CellOrigin)
	return ok
}

// Summary holds per-band finding counts for a scan.
type Summary struct {
	Total          int
	Malicious      int // scores 1-3
	Suspicious     int // scores 4-6
	Risky          int // scores 7-9
	Safe           int // score 10
	BelowThreshold int // scores strictly below the threshold
}

// Summarize computes band counts over a findings list.
func Summarize(findings []Finding, threshold int) Summary {
	s := Summary{Total: len(findings)}
	for _, f := range findings {
		switch {
		case f.Score <= 3:
			s.Malicious++
		case f.Score <= 6:
			s.Suspicious++
		case f.Score <= 9:
			s.Risky++
		default:
			s.Safe++
		}
		if f.Score < threshold {
			s.BelowThreshold++
		}
	}
	return s
}
