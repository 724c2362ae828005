// Package main provides the CLI entry point for sheetguard.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetguard/sheetguard-go/pkg/sheetguard"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/classify"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/report"
	"github.com/sheetguard/sheetguard-go/pkg/sheetguard/sanitize"
)

var (
	removeThreshold int
	outputDir       string
	concurrency     int
	model           string
	baseURL         string
	timeoutSecs     int
	skipSanitize    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheetguard [input file]",
		Short: "Detect and analyze macros/code in spreadsheets",
		Long: `sheetguard extracts macros and formulas from spreadsheet files
(.xlsx, .xlsm, .ods), scores each fragment for malicious intent with an
external classifier, and writes a markdown report plus a sanitized copy
with risky cells redacted.`,
		Args: cobra.ExactArgs(1),
		RunE: run,
	}

	rootCmd.Flags().IntVar(&removeThreshold, "remove-threshold", sheetguard.DefaultThreshold,
		"Score threshold for removing code (removes items with score < threshold)")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for output files (default: same as input file)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of classification calls in flight")
	rootCmd.Flags().StringVar(&model, "model", "", "Classifier model name (overrides SHEETGUARD_MODEL)")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "Classifier API base URL (overrides SHEETGUARD_BASE_URL)")
	rootCmd.Flags().IntVar(&timeoutSecs, "timeout", 60, "Per-classification timeout in seconds")
	rootCmd.Flags().BoolVar(&skipSanitize, "skip-sanitize", false, "Write the report only, no sanitized copy")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if _, err := sheetguard.DetectFormat(inputPath); err != nil {
		return fmt.Errorf("unsupported file format: use .xlsx, .xlsm, or .ods files")
	}

	dir := filepath.Dir(inputPath)
	if outputDir != "" {
		dir = outputDir
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	cfg := classify.LoadConfig()
	if model != "" {
		cfg.Model = model
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeoutSecs > 0 {
		cfg.Timeout = time.Duration(timeoutSecs) * time.Second
	}

	scanner := sheetguard.NewScanner(classify.NewClient(cfg), sheetguard.Options{
		Threshold:   removeThreshold,
		Concurrency: concurrency,
	})

	result, err := scanner.Scan(cmd.Context(), inputPath)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	fmt.Printf("Scan complete: %d items found\n", len(result.Findings))

	now := time.Now()
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	stamp := now.Format("20060102_150405")

	reportPath := filepath.Join(dir, fmt.Sprintf("%s_report_%s.md", stem, stamp))
	content := report.Render(report.Meta{
		FileName:    filepath.Base(inputPath),
		GeneratedAt: now,
		Threshold:   removeThreshold,
	}, result.Findings)
	if err := os.WriteFile(reportPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report saved to: %s\n", reportPath)

	if skipSanitize {
		return nil
	}

	sanitizedPath := filepath.Join(dir, fmt.Sprintf("%s_sanitized_%s%s", stem, stamp, filepath.Ext(inputPath)))
	var removed int
	switch result.Format {
	case sheetguard.FormatCellGrid:
		removed, err = sanitize.CellGrid(inputPath, sanitizedPath, result.Findings, removeThreshold)
	case sheetguard.FormatComposite:
		removed, err = sanitize.Composite(inputPath, sanitizedPath, result.Findings, removeThreshold)
	}
	if err != nil {
		// The report above is already complete and valid.
		fmt.Fprintf(os.Stderr, "Error creating sanitized copy: %v\n", err)
		return nil
	}
	fmt.Printf("Sanitized copy created: %s\n", sanitizedPath)
	fmt.Printf("Items removed/highlighted: %d\n", removed)
	return nil
}
