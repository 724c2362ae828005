// Package sheetguard drives the extraction, classification and sanitization
// pipeline for one spreadsheet file.
package sheetguard

// DefaultThreshold is the default removal threshold: findings scoring
// strictly below it are redacted from the sanitized copy.
const DefaultThreshold = 5

// Options configures a scan.
type Options struct {
	// Threshold is the removal threshold (strict less-than).
	Threshold int
	// Concurrency is the number of classification calls in flight. With 1
	// (the default) fragments are classified sequentially in discovery
	// order. Sequence numbers are assigned at discovery either way, so
	// report ordering is unaffected by completion order.
	Concurrency int
}

// DefaultOptions returns default scan options.
func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		Concurrency: 1,
	}
}
