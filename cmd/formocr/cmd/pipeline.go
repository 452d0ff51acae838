package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/formocr/internal/config"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

// newPipeline builds the extraction pipeline from the resolved configuration.
// Models load lazily, so a missing detector surfaces per document rather than here.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	p, err := pipeline.NewBuilderFromConfig(cfg.ToPipelineConfig()).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction pipeline: %w", err)
	}
	slog.Debug("pipeline ready", "models_dir", p.Config().ModelsDir, "ocr_backend", cfg.OCR.Backend)
	return p, nil
}

func closePipeline(p *pipeline.Pipeline) {
	if err := p.Close(); err != nil {
		slog.Warn("error closing pipeline", "error", err)
	}
}

// writeOutput writes out to file, or to stdout when file is empty.
func writeOutput(stdout interface{ Write([]byte) (int, error) }, file, out string) error {
	if file == "" {
		_, err := fmt.Fprintln(stdout, out)
		return err
	}
	if err := os.WriteFile(file, []byte(out+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
