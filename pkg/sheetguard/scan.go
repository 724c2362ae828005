package sheetguard

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/classify"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/models"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/odf"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/parser"
)

// Format identifies the container format of an input file.
type Format string

const (
	// FormatCellGrid is the xlsx/xlsm sheet-of-cells container; xlsm may
	// additionally carry a macro project.
	FormatCellGrid Format = "cell-grid"
	// FormatComposite is the ods XML-described table container.
	FormatComposite Format = "composite"
)

// DetectFormat determines the container format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatCellGrid, nil
	case ".ods":
		return FormatComposite, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Result holds the outcome of one scan.
type Result struct {
	Path     string
	Format   Format
	Findings []models.Finding
}

// Scanner runs the pipeline for one file: load, extract, classify. The
// stages are strictly sequential; only a load failure aborts the run.
type Scanner struct {
	classifier classify.Classifier
	opts       Options
}

// NewScanner creates a scanner using the given classifier.
func NewScanner(classifier classify.Classifier, opts Options) *Scanner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scanner{classifier: classifier, opts: opts}
}

// Scan analyzes one spreadsheet file and returns its findings in discovery
// order.
func (s *Scanner) Scan(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, NewScanError(path, "load", err)
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	fragments, err := s.extract(path, format)
	if err != nil {
		return nil, err
	}
	for i := range fragments {
		fragments[i].SequenceNumber = i + 1
	}
	log.Printf("[Scanner] %s: %d fragments discovered", filepath.Base(path), len(fragments))

	return &Result{
		Path:     path,
		Format:   format,
		Findings: s.classifyAll(ctx, fragments),
	}, nil
}

// extract discovers fragments for a container: macro modules first, then
// formulas sheet by sheet.
func (s *Scanner) extract(path string, format Format) ([]models.Fragment, error) {
	switch format {
	case FormatCellGrid:
		return s.extractCellGrid(path)
	case FormatComposite:
		return s.extractComposite(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func (s *Scanner) extractCellGrid(path string) ([]models.Fragment, error) {
	var fragments []models.Fragment

	// Absence of a macro project yields nothing; a broken one is fail-soft.
	macros, err := parser.ExtractMacros(path)
	if err != nil {
		return nil, NewScanError(path, "load", err)
	}
	for _, m := range macros {
		fragments = append(fragments, models.Fragment{
			Location: "Macro Module: " + m.Name,
			Code:     m.Code,
			Origin:   models.ModuleOrigin{Module: m.Name},
		})
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, NewScanError(path, "load", err)
	}
	defer f.Close()

	formulas, err := parser.ExtractCellGridFormulas(f)
	if err != nil {
		return nil, NewScanError(path, "extract", err)
	}
	return append(fragments, formulas...), nil
}

func (s *Scanner) extractComposite(path string) ([]models.Fragment, error) {
	doc, err := odf.Load(path)
	if err != nil {
		return nil, NewScanError(path, "load", err)
	}
	fragments, err := parser.ExtractCompositeFormulas(doc.Content)
	if err != nil {
		return nil, NewScanError(path, "extract", err)
	}
	return fragments, nil
}

// classifyAll scores every fragment. Findings keep discovery order and
// sequence numbers regardless of classification completion order.
func (s *Scanner) classifyAll(ctx context.Context, fragments []models.Fragment) []models.Finding {
	findings := make([]models.Finding, len(fragments))
	if s.opts.Concurrency == 1 {
		for i, frag := range fragments {
			log.Printf("[Scanner] Analyzing item %d: %s", frag.SequenceNumber, frag.Location)
			score, analysis := s.classifier.Classify(ctx, frag.Code, frag.Location)
			findings[i] = models.Finding{Fragment: frag, Score: score, Analysis: analysis}
			log.Printf("[Scanner]   Score: %d/10", score)
		}
		return findings
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, frag := range fragments {
		i, frag := i, frag
		g.Go(func() error {
			log.Printf("[Scanner] Analyzing item %d: %s", frag.SequenceNumber, frag.Location)
			score, analysis := s.classifier.Classify(ctx, frag.Code, frag.Location)
			findings[i] = models.Finding{Fragment: frag, Score: score, Analysis: analysis}
			return nil
		})
	}
	// Classify never errors by contract, so Wait only synchronizes.
	_ = g.Wait()
	return findings
}
