// Package pipeline wires form-region detection and OCR into document text extraction.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/formocr/internal/cache"
	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/models"
	"github.com/MeKo-Tech/formocr/internal/ocr"
)

// Config holds configuration for the extraction pipeline and its components.
type Config struct {
	ModelsDir        string
	Detector         detector.Config
	OCR              ocr.Config
	Cache            cache.Config
	DebugDir         string // when set, region crops and an overlay are written per document
	WarmupIterations int    // optional warmup runs to reduce first-run latency
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir: models.GetModelsDir(""),
		Detector:  detector.DefaultConfig(),
		OCR:       ocr.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg           Config
	headFactory   detector.HeadFactory
	engineFactory ocr.EngineFactory
	cacheClient   cache.Client
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing configuration.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir sets the models directory and updates the detector model path.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
	}
	b.cfg.Detector.UpdateModelPath(b.cfg.ModelsDir)
	return b
}

// WithDetectorModelPath overrides the detector model path directly.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
	}
	return b
}

// WithObjectnessThreshold sets the strict objectness cut-off.
func (b *Builder) WithObjectnessThreshold(th float64) *Builder {
	if th > 0 {
		b.cfg.Detector.ObjectnessThreshold = th
	}
	return b
}

// WithNMS sets the suppression IoU threshold and the detection cap (<= 0 disables the cap).
func (b *Builder) WithNMS(iou float64, maxDetections int) *Builder {
	if iou > 0 {
		b.cfg.Detector.NMSThreshold = iou
	}
	b.cfg.Detector.MaxDetections = maxDetections
	return b
}

// WithCoveragePolicy overrides the full-document fallback thresholds.
func (b *Builder) WithCoveragePolicy(p detector.CoveragePolicy) *Builder {
	b.cfg.Detector.Coverage = p
	return b
}

// WithThreads sets the detector intra-op thread count (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
	}
	return b
}

// WithGPU enables GPU acceleration for the detector.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.GPU.UseGPU = enabled
	return b
}

// WithGPUDevice sets the CUDA device ID.
func (b *Builder) WithGPUDevice(deviceID int) *Builder {
	b.cfg.Detector.GPU.DeviceID = deviceID
	return b
}

// WithWarmupIterations sets model warmup runs to reduce cold-start latency.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// WithOCR replaces the OCR engine configuration.
func (b *Builder) WithOCR(cfg ocr.Config) *Builder {
	b.cfg.OCR = cfg
	return b
}

// WithOCRBackend selects the OCR engine by name.
func (b *Builder) WithOCRBackend(backend string) *Builder {
	if backend != "" {
		b.cfg.OCR.Backend = backend
	}
	return b
}

// WithCache replaces the result cache configuration.
func (b *Builder) WithCache(cfg cache.Config) *Builder {
	b.cfg.Cache = cfg
	return b
}

// WithDebugDir enables per-document crop and overlay dumps into dir.
func (b *Builder) WithDebugDir(dir string) *Builder {
	b.cfg.DebugDir = dir
	return b
}

// WithHeadFactory injects the detection head instead of loading the ONNX model.
func (b *Builder) WithHeadFactory(f detector.HeadFactory) *Builder {
	b.headFactory = f
	return b
}

// WithEngineFactory injects the OCR engine instead of building one from the OCR config.
func (b *Builder) WithEngineFactory(f ocr.EngineFactory) *Builder {
	b.engineFactory = f
	return b
}

// WithCacheClient injects a result cache, overriding the cache config.
func (b *Builder) WithCacheClient(c cache.Client) *Builder {
	b.cacheClient = c
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration. A missing model file is not an error here:
// it is reported per document so the host keeps running.
func (b *Builder) Validate() error {
	if err := b.cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}
	if b.engineFactory == nil {
		if err := b.cfg.OCR.Validate(); err != nil {
			return fmt.Errorf("ocr config: %w", err)
		}
	}
	if b.cacheClient == nil && b.cfg.Cache.Enabled {
		if err := b.cfg.Cache.Validate(); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}
	if b.cfg.WarmupIterations < 0 {
		return errors.New("warmup iterations must be non-negative")
	}
	return nil
}

// Pipeline owns the detector, the OCR adapter and the optional result cache.
// It is safe for concurrent use; each document is processed sequentially.
type Pipeline struct {
	cfg      Config
	Detector *detector.Detector
	OCR      *ocr.Adapter
	cache    cache.Client
}

// Build initializes the pipeline components. Models and engines load lazily
// on first use unless warmup is requested.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	det, err := detector.NewDetector(b.cfg.Detector, b.headFactory)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}

	var adapter *ocr.Adapter
	if b.engineFactory != nil {
		adapter = ocr.NewAdapter(b.engineFactory,
			ocr.WithName(b.cfg.OCR.Backend), ocr.WithNormalization(b.cfg.OCR.Normalize))
	} else {
		adapter, err = ocr.NewAdapterFromConfig(b.cfg.OCR)
		if err != nil {
			_ = det.Close()
			return nil, fmt.Errorf("init ocr: %w", err)
		}
	}

	cc := b.cacheClient
	if cc == nil {
		cc, err = cache.New(b.cfg.Cache)
		if err != nil {
			_ = det.Close()
			_ = adapter.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}

	p := &Pipeline{cfg: b.cfg, Detector: det, OCR: adapter, cache: cc}

	if b.cfg.WarmupIterations > 0 {
		p.warmup(b.cfg.WarmupIterations)
	}
	return p, nil
}

func (p *Pipeline) warmup(n int) {
	head, err := p.Detector.Head()
	if err != nil {
		slog.Warn("skipping warmup, detector unavailable", "error", err)
		return
	}
	if w, ok := head.(interface{ Warmup(int) error }); ok {
		if err := w.Warmup(n); err != nil {
			slog.Warn("detector warmup failed", "error", err)
		}
	}
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	var errs []error
	if p.OCR != nil {
		errs = append(errs, p.OCR.Close())
	}
	if p.Detector != nil {
		errs = append(errs, p.Detector.Close())
	}
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties and model info.
func (p *Pipeline) Info() map[string]interface{} {
	info := map[string]interface{}{
		"models_dir": p.cfg.ModelsDir,
		"detector":   p.Detector.GetModelInfo(),
		"coverage":   p.cfg.Detector.Coverage,
		"ocr": map[string]interface{}{
			"backend":   p.OCR.Name(),
			"normalize": p.cfg.OCR.Normalize,
		},
		"cache": map[string]interface{}{
			"enabled": p.cache != nil,
			"backend": p.cfg.Cache.Backend,
			"ttl_sec": p.cfg.Cache.TTLSec,
		},
		"debug_dir": p.cfg.DebugDir,
	}
	return info
}
