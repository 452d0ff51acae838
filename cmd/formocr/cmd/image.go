package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/batch"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image <files...>",
	Short: "Extract form text from images",
	Long: `Detect the form regions of one or more images and read each region with OCR.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  formocr image form.png
  formocr image *.png --format json
  formocr image form.jpg --output result.json --overlay-dir overlays/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImageCommand,
}

func runImageCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	bc := cfg.ToBatchConfig()
	bc.Workers = 1
	bc.ContinueOnError = true

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	res, err := batch.Process(cmd.Context(), p, args, bc, nil)
	if err != nil {
		return err
	}

	out, err := formatImageResults(res, bc.Format)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), bc.OutputFile, out); err != nil {
		return err
	}
	if err := batch.WriteOverlays(res, bc.OverlayDir); err != nil {
		return err
	}

	if failed := res.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d image(s) failed", failed, len(res.Items))
	}
	return nil
}

// formatImageResults renders a single document in the per-document schema and
// several documents in the batch schema.
func formatImageResults(res *batch.Result, format string) (string, error) {
	if len(res.Items) != 1 {
		out, err := batch.FormatResults(res, format)
		return strings.TrimRight(out, "\n"), err
	}
	r := res.Items[0].Result
	switch format {
	case batch.FormatJSON:
		return pipeline.ToJSON(r)
	case batch.FormatCSV:
		out, err := pipeline.ToCSV(r)
		return strings.TrimRight(out, "\n"), err
	default:
		return pipeline.ToPlainText(r)
	}
}

func addOutputFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("format", "f", batch.FormatText, "output format: text, json, csv")
	fs.StringP("output", "o", "", "output file (default: stdout)")
	bindConfigFlag(fs, "format", "output.format")
	bindConfigFlag(fs, "output", "output.file")
}

func addDetectorFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("det-model", "", "override detector model path")
	fs.Float64("objectness", 0.7, "objectness threshold for a grid cell to become a region (0..1)")
	fs.Float64("nms", 0.5, "IoU at which overlapping regions are suppressed (0..1)")
	fs.String("ocr-backend", "doctr", "OCR backend: doctr, vision, documentai")
	fs.String("debug-dir", "", "write region crops and an overlay per document")
	fs.Bool("gpu", false, "run the detector on CUDA")
	bindConfigFlag(fs, "det-model", "detector.model_path")
	bindConfigFlag(fs, "objectness", "detector.objectness_threshold")
	bindConfigFlag(fs, "nms", "detector.nms_threshold")
	bindConfigFlag(fs, "ocr-backend", "ocr.backend")
	bindConfigFlag(fs, "debug-dir", "output.debug_dir")
	bindConfigFlag(fs, "gpu", "gpu.enabled")
}

func init() {
	rootCmd.AddCommand(imageCmd)
	addOutputFlags(imageCmd)
	addDetectorFlags(imageCmd)
	imageCmd.Flags().String("overlay-dir", "", "directory to save overlay images")
	imageCmd.Flags().Int("timeout", 120, "per-image timeout in seconds (0 disables)")
	bindConfigFlag(imageCmd.Flags(), "overlay-dir", "output.overlay_dir")
	bindConfigFlag(imageCmd.Flags(), "timeout", "batch.document_timeout_sec")
}
