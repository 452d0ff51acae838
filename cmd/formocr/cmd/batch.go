package cmd

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/batch"
)

// batchCmd represents the batch command for parallel document processing.
var batchCmd = &cobra.Command{
	Use:   "batch <dirs|files...>",
	Short: "Extract form text from many images in parallel",
	Long: `Process image files and directories on a pool of workers.

Each document runs under its own timeout. A document that times out or fails
is reported in the results; with --continue-on-error=false the first failure
stops the run and the remaining documents are marked as skipped.

Examples:
  formocr batch scans/
  formocr batch scans/ --recursive --workers 8
  formocr batch a.png b.png --format csv --output results.csv
  formocr batch scans/ --overlay-dir overlays/ --stats`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatchCommand,
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	bc := cfg.ToBatchConfig()
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	bc.ShowStats, _ = cmd.Flags().GetBool("stats")
	if err := bc.Validate(); err != nil {
		return err
	}

	files, err := batch.DiscoverImageFiles(args, bc.Recursive, bc.IncludePatterns, bc.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no supported image files found")
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	var progress batch.ProgressCallback = batch.NoOpProgressCallback{}
	if !bc.Quiet {
		progress = batch.NewBarProgress(cmd.ErrOrStderr(), "Extracting")
	}

	res, procErr := batch.Process(cmd.Context(), p, files, bc, progress)
	if res == nil {
		return fmt.Errorf("batch processing failed: %w", procErr)
	}

	if err := batch.SaveResults(res, bc, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if err := batch.WriteOverlays(res, bc.OverlayDir); err != nil {
		return err
	}
	if bc.ShowStats && !bc.Quiet {
		batch.PrintStats(cmd.ErrOrStderr(), res)
	}

	if procErr != nil {
		return fmt.Errorf("batch processing failed: %w", procErr)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addOutputFlags(batchCmd)
	addDetectorFlags(batchCmd)

	fs := batchCmd.Flags()
	fs.String("overlay-dir", "", "directory to save overlay images")
	fs.IntP("workers", "w", runtime.NumCPU(), "number of parallel workers")
	fs.Int("timeout", 120, "per-document timeout in seconds (0 disables)")
	fs.Bool("continue-on-error", true, "keep processing after a document fails")
	fs.BoolP("recursive", "r", false, "recursively scan directories")
	fs.StringSlice("include", nil, "file patterns to include (e.g. '*.png')")
	fs.StringSlice("exclude", nil, "file patterns to exclude")
	fs.BoolP("quiet", "q", false, "suppress the progress bar and statistics")
	fs.Bool("stats", false, "print processing statistics")

	bindConfigFlag(fs, "overlay-dir", "output.overlay_dir")
	bindConfigFlag(fs, "workers", "batch.workers")
	bindConfigFlag(fs, "timeout", "batch.document_timeout_sec")
	bindConfigFlag(fs, "continue-on-error", "batch.continue_on_error")
	bindConfigFlag(fs, "recursive", "batch.recursive")
}
