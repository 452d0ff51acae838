package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/batch"
	"github.com/MeKo-Tech/formocr/internal/pdf"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

// pdfCmd represents the pdf command.
var pdfCmd = &cobra.Command{
	Use:   "pdf <file>",
	Short: "Extract form text from the page images of a PDF",
	Long: `Extract the embedded page images of a PDF and run form extraction on each.

Pages without raster images are reported with their embedded text layer.
Encrypted documents need --password.

Examples:
  formocr pdf scans.pdf
  formocr pdf scans.pdf --pages 1-3,7 --format json
  formocr pdf locked.pdf --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: runPDFCommand,
}

func runPDFCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	pages, _ := cmd.Flags().GetString("pages")
	password, _ := cmd.Flags().GetString("password")
	if _, err := pdf.ParsePageRange(pages); err != nil {
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	start := time.Now()
	res, err := p.ExtractPDF(cmd.Context(), args[0], pdf.Options{PageRange: pages, Password: password})
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", args[0], err)
	}

	var out string
	switch cfg.Output.Format {
	case batch.FormatJSON:
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		out = string(b)
	case batch.FormatCSV:
		out, err = pdfCSV(res)
		if err != nil {
			return err
		}
	default:
		out = strings.TrimRight(pipeline.PDFToPlainText(res), "\n")
	}
	if err := writeOutput(cmd.OutOrStdout(), cfg.Output.File, out); err != nil {
		return err
	}

	failed := 0
	for _, page := range res.Pages {
		for _, img := range page.Images {
			if !img.OK() {
				failed++
			}
		}
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processed %d page(s) in %v\n", res.TotalPages, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d page image(s) failed", failed)
	}
	return nil
}

// pdfCSV exports every page image as its own CSV block, prefixed with the page number.
func pdfCSV(res *pipeline.PDFResult) (string, error) {
	var b strings.Builder
	for _, page := range res.Pages {
		for i, img := range page.Images {
			csv, err := pipeline.ToCSV(img)
			if err != nil {
				return "", fmt.Errorf("format csv failed: %w", err)
			}
			fmt.Fprintf(&b, "# page %d image %d\n%s", page.PageNumber, i, csv)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	addOutputFlags(pdfCmd)
	addDetectorFlags(pdfCmd)
	pdfCmd.Flags().String("pages", "", "page range to process (e.g., '1-5', '1,3,5')")
	pdfCmd.Flags().StringP("password", "p", "", "user password for encrypted PDFs")
}
