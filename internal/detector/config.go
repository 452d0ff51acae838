package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/formocr/internal/models"
	"github.com/MeKo-Tech/formocr/internal/onnx"
)

// Default graph tensor names of the exported detector.
const (
	OutputBoxes       = "boxes"
	OutputObjectness  = "objectness"
	OutputClassLogits = "class_logits"
)

// Config holds configuration for the form-region detector.
type Config struct {
	ModelPath           string         // Path to the ONNX detector export
	ObjectnessThreshold float64        // Strict lower bound on cell objectness (default: 0.7)
	NMSThreshold        float64        // IoU at or above which a lower-scored box is suppressed (default: 0.5)
	MaxDetections       int            // Cap after suppression, <= 0 for no cap (default: 50)
	MinWidth            int            // Resize floor width (default: 750)
	MinHeight           int            // Resize floor height (default: 1000)
	NumThreads          int            // Intra-op threads, 0 for ONNX Runtime default
	WarmupIterations    int            // Blank forward passes after load
	Coverage            CoveragePolicy // Full-document fallback thresholds
	GPU                 onnx.GPUConfig // GPU acceleration configuration
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:           models.GetDetectionModelPath("", ""),
		ObjectnessThreshold: DefaultObjectnessThreshold,
		NMSThreshold:        DefaultNMSThreshold,
		MaxDetections:       DefaultMaxDetections,
		MinWidth:            DefaultMinWidth,
		MinHeight:           DefaultMinHeight,
		NumThreads:          0,
		WarmupIterations:    0,
		Coverage:            DefaultCoveragePolicy(),
		GPU:                 onnx.DefaultGPUConfig(),
	}
}

// UpdateModelPath points ModelPath at the detector weights under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.GetDetectionModelPath(modelsDir, "")
}

// Validate checks the configuration for values the decoder cannot work with.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.ObjectnessThreshold < 0 || c.ObjectnessThreshold >= 1 {
		return fmt.Errorf("objectness threshold must be in [0, 1), got %v", c.ObjectnessThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold must be in (0, 1], got %v", c.NMSThreshold)
	}
	if c.MinWidth < 0 || c.MinHeight < 0 {
		return fmt.Errorf("minimum size must be non-negative, got %dx%d", c.MinWidth, c.MinHeight)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("num threads must be non-negative, got %d", c.NumThreads)
	}
	if c.Coverage.MaxCoverage <= 0 || c.Coverage.CrowdedCoverage <= 0 {
		return errors.New("coverage thresholds must be positive")
	}
	if c.Coverage.CrowdedCount < 0 {
		return fmt.Errorf("crowded count must be non-negative, got %d", c.Coverage.CrowdedCount)
	}
	return onnx.ValidateGPUConfig(c.GPU)
}
