package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// DetectionResult holds the output of one detection pass.
type DetectionResult struct {
	Prepared       PreparedImage
	GridW          int
	GridH          int
	Candidates     int         // detections decoded before suppression
	Detections     []Detection // survivors, highest score first
	OriginalWidth  int
	OriginalHeight int
	InferenceTime  time.Duration
}

// Detector prepares images, runs the head and post-processes its output.
type Detector struct {
	config Config
	loader *HeadLoader
}

// NewDetector creates a detector whose head is built lazily by factory.
// A nil factory loads config.ModelPath through ONNX Runtime.
func NewDetector(config Config, factory HeadFactory) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = OnnxHeadFactory(config)
	}
	return &Detector{config: config, loader: NewHeadLoader(factory)}, nil
}

// GetConfig returns a copy of the detector's configuration.
func (d *Detector) GetConfig() Config { return d.config }

// Head returns the shared head, loading it on first use.
func (d *Detector) Head() (Head, error) { return d.loader.Get() }

// Detect finds form regions in img. Coordinates in the result refer to img.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*DetectionResult, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}

	head, err := d.loader.Get()
	if err != nil {
		return nil, err
	}

	prep, err := Prepare(img, d.config.MinWidth, d.config.MinHeight)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}

	start := time.Now()
	out, err := head.Forward(ctx, prep)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector output: %w", err)
	}

	candidates := Decode(out, d.config.ObjectnessThreshold, prep)
	kept := Suppress(candidates, d.config.NMSThreshold, d.config.MaxDetections)

	b := img.Bounds()
	if err := ValidateDetections(kept, b.Dx(), b.Dy()); err != nil {
		slog.Warn("detections outside image bounds", "error", err)
	}
	slog.Debug("detection complete",
		"grid", fmt.Sprintf("%dx%d", out.GridW, out.GridH),
		"candidates", len(candidates),
		"kept", len(kept),
		"inference", elapsed)

	return &DetectionResult{
		Prepared:       prep,
		GridW:          out.GridW,
		GridH:          out.GridH,
		Candidates:     len(candidates),
		Detections:     kept,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		InferenceTime:  elapsed,
	}, nil
}

// GetModelInfo describes the head when it exposes model metadata.
func (d *Detector) GetModelInfo() map[string]interface{} {
	info := map[string]interface{}{
		"model_path":           d.config.ModelPath,
		"objectness_threshold": d.config.ObjectnessThreshold,
		"nms_threshold":        d.config.NMSThreshold,
		"max_detections":       d.config.MaxDetections,
		"min_size":             []int{d.config.MinWidth, d.config.MinHeight},
		"loaded":               d.loader.Loaded(),
	}
	if !d.loader.Loaded() {
		return info
	}
	if h, err := d.loader.Get(); err == nil {
		if m, ok := h.(interface{ GetModelInfo() map[string]interface{} }); ok {
			info["head"] = m.GetModelInfo()
		}
	}
	return info
}

// Close releases the head.
func (d *Detector) Close() error { return d.loader.Close() }
