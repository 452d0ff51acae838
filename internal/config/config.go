package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/formocr/internal/batch"
	"github.com/MeKo-Tech/formocr/internal/cache"
	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/models"
	"github.com/MeKo-Tech/formocr/internal/ocr"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/MeKo-Tech/formocr/internal/server"
)

// Config represents the complete configuration for the formocr application.
// It includes settings for all commands (image, pdf, batch, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	OCR      ocr.Config     `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Cache    cache.Config   `mapstructure:"cache" yaml:"cache" json:"cache"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   server.Config  `mapstructure:"server" yaml:"server" json:"server"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch" json:"batch"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DetectorConfig contains form-region detection settings.
type DetectorConfig struct {
	ModelPath           string                  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	ObjectnessThreshold float64                 `mapstructure:"objectness_threshold" yaml:"objectness_threshold" json:"objectness_threshold"`
	NMSThreshold        float64                 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	MaxDetections       int                     `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`
	MinWidth            int                     `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MinHeight           int                     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	NumThreads          int                     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	WarmupIterations    int                     `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
	Coverage            detector.CoveragePolicy `mapstructure:"coverage" yaml:"coverage" json:"coverage"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	DebugDir   string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers            int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	DocumentTimeoutSec int  `mapstructure:"document_timeout_sec" yaml:"document_timeout_sec" json:"document_timeout_sec"`
	ContinueOnError    bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive          bool `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	b := batch.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Detector: DetectorConfig{
			ObjectnessThreshold: det.ObjectnessThreshold,
			NMSThreshold:        det.NMSThreshold,
			MaxDetections:       det.MaxDetections,
			MinWidth:            det.MinWidth,
			MinHeight:           det.MinHeight,
			NumThreads:          det.NumThreads,
			Coverage:            det.Coverage,
		},
		OCR:    ocr.DefaultConfig(),
		Cache:  cache.DefaultConfig(),
		Output: OutputConfig{Format: batch.FormatText},
		Server: server.DefaultConfig(),
		Batch: BatchConfig{
			Workers:            b.Workers,
			DocumentTimeoutSec: int(b.DocumentTimeout / time.Second),
			ContinueOnError:    b.ContinueOnError,
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{batch.FormatText, batch.FormatJSON, batch.FormatCSV}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := validateThreshold(c.Detector.ObjectnessThreshold, "detector.objectness_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Detector.NMSThreshold, "detector.nms_threshold"); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	if c.Batch.DocumentTimeoutSec < 0 {
		return fmt.Errorf("invalid document timeout: %d (must not be negative)", c.Batch.DocumentTimeoutSec)
	}

	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("invalid ocr config: %w", err)
	}
	if c.Cache.Enabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("invalid cache config: %w", err)
		}
	}

	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		ModelsDir:        models.GetModelsDir(c.ModelsDir),
		Detector:         c.toDetectorConfig(),
		OCR:              c.OCR,
		Cache:            c.Cache,
		DebugDir:         c.Output.DebugDir,
		WarmupIterations: c.Detector.WarmupIterations,
	}
}

// toDetectorConfig converts to detector.Config.
func (c *Config) toDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.UpdateModelPath(models.GetModelsDir(c.ModelsDir))
	if c.Detector.ModelPath != "" {
		cfg.ModelPath = c.Detector.ModelPath
	}
	cfg.ObjectnessThreshold = c.Detector.ObjectnessThreshold
	cfg.NMSThreshold = c.Detector.NMSThreshold
	cfg.MaxDetections = c.Detector.MaxDetections
	cfg.MinWidth = c.Detector.MinWidth
	cfg.MinHeight = c.Detector.MinHeight
	cfg.NumThreads = c.Detector.NumThreads
	cfg.WarmupIterations = c.Detector.WarmupIterations
	cfg.Coverage = c.Detector.Coverage

	cfg.GPU.UseGPU = c.GPU.Enabled
	cfg.GPU.DeviceID = c.GPU.Device
	if limit, err := parseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		cfg.GPU.GPUMemLimit = limit
	}
	return cfg
}

// ToServerConfig returns the HTTP server settings.
func (c *Config) ToServerConfig() server.Config {
	return c.Server
}

// ToBatchConfig returns batch settings; output options come from the output section.
func (c *Config) ToBatchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.Workers = c.Batch.Workers
	cfg.DocumentTimeout = time.Duration(c.Batch.DocumentTimeoutSec) * time.Second
	cfg.ContinueOnError = c.Batch.ContinueOnError
	cfg.Recursive = c.Batch.Recursive
	cfg.Format = c.Output.Format
	cfg.OutputFile = c.Output.File
	cfg.OverlayDir = c.Output.OverlayDir
	return cfg
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// parseMemoryLimit parses a GPU memory limit such as "1GB" or "512MB" into bytes.
// "auto" and "" mean unlimited (0).
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || strings.EqualFold(limit, "auto") {
		return 0, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(limit))
	units := []struct {
		suffix string
		mult   float64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSuffix(upper, u.suffix), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.mult), nil
	}
	return 0, errors.New("memory limit must end with one of: B, KB, MB, GB")
}
