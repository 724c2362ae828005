package sheetguard

import (
	"errors"
	"fmt"
)

// ErrFileNotFound indicates the input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrUnsupportedFormat indicates the input file extension is not a supported
// spreadsheet container.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ScanError represents a failure at one stage of a scan.
type ScanError struct {
	Path  string
	Stage string // "load", "extract", "sanitize"
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error for %q (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new ScanError.
func NewScanError(path, stage string, err error) *ScanError {
	return &ScanError{Path: path, Stage: stage, Err: err}
}
