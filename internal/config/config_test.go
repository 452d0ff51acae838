package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/formocr/internal/cache"
	"github.com/MeKo-Tech/formocr/internal/ocr"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "model_state", cfg.ModelsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.7, cfg.Detector.ObjectnessThreshold, 1e-9)
	assert.Equal(t, ocr.BackendDocTR, cfg.OCR.Backend)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Batch.DocumentTimeoutSec)
	assert.Equal(t, "auto", cfg.GPU.MemoryLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"threshold above one", func(c *Config) { c.Detector.ObjectnessThreshold = 1.5 }, "detector.objectness_threshold"},
		{"negative nms", func(c *Config) { c.Detector.NMSThreshold = -0.1 }, "detector.nms_threshold"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "invalid max upload size"},
		{"server timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, "invalid timeout"},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }, "invalid batch workers"},
		{"document timeout", func(c *Config) { c.Batch.DocumentTimeoutSec = -1 }, "invalid document timeout"},
		{"ocr backend", func(c *Config) { c.OCR.Backend = "tesseract" }, "invalid ocr config"},
		{"documentai without processor", func(c *Config) { c.OCR.Backend = ocr.BackendDocumentAI }, "project_id"},
		{"cache backend", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.Backend = "memcached"
		}, "invalid cache config"},
		{"gpu memory", func(c *Config) { c.GPU.MemoryLimit = "lots" }, "invalid GPU memory limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateIgnoresDisabledCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Backend = "memcached"
	assert.NoError(t, cfg.Validate())
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"AUTO", 0, false},
		{"512MB", 512 << 20, false},
		{"2gb", 2 << 30, false},
		{"1.5GB", 3 << 29, false},
		{"64KB", 64 << 10, false},
		{"100B", 100, false},
		{"12", 0, true},
		{"xGB", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMemoryLimit(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = "/models"
	cfg.Detector.ObjectnessThreshold = 0.8
	cfg.Detector.MaxDetections = 10
	cfg.Detector.WarmupIterations = 2
	cfg.Output.DebugDir = "/tmp/debug"
	cfg.Cache = cache.Config{Enabled: true, Backend: cache.BackendRedis, RedisAddr: "redis:6379"}
	cfg.GPU = GPUConfig{Enabled: true, Device: 1, MemoryLimit: "1GB"}

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, "/models", pc.ModelsDir)
	assert.Equal(t, "/tmp/debug", pc.DebugDir)
	assert.Equal(t, 2, pc.WarmupIterations)
	assert.Equal(t, "redis:6379", pc.Cache.RedisAddr)
	assert.Equal(t, cfg.OCR, pc.OCR)

	assert.Contains(t, pc.Detector.ModelPath, "/models")
	assert.InDelta(t, 0.8, pc.Detector.ObjectnessThreshold, 1e-9)
	assert.Equal(t, 10, pc.Detector.MaxDetections)
	assert.True(t, pc.Detector.GPU.UseGPU)
	assert.Equal(t, 1, pc.Detector.GPU.DeviceID)
	assert.Equal(t, uint64(1<<30), pc.Detector.GPU.GPUMemLimit)
}

func TestToPipelineConfigExplicitModelPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = "/models"
	cfg.Detector.ModelPath = "/elsewhere/detector.onnx"

	assert.Equal(t, "/elsewhere/detector.onnx", cfg.ToPipelineConfig().Detector.ModelPath)
}

func TestToBatchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Batch = BatchConfig{Workers: 3, DocumentTimeoutSec: 30, ContinueOnError: false, Recursive: true}
	cfg.Output = OutputConfig{Format: "csv", File: "out.csv", OverlayDir: "overlays"}

	bc := cfg.ToBatchConfig()
	assert.Equal(t, 3, bc.Workers)
	assert.Equal(t, 30*time.Second, bc.DocumentTimeout)
	assert.False(t, bc.ContinueOnError)
	assert.True(t, bc.Recursive)
	assert.Equal(t, "csv", bc.Format)
	assert.Equal(t, "out.csv", bc.OutputFile)
	assert.Equal(t, "overlays", bc.OverlayDir)
	assert.NoError(t, bc.Validate())
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 9000
	cfg.Server.RateLimit.Enabled = true

	sc := cfg.ToServerConfig()
	assert.Equal(t, 9000, sc.Port)
	assert.True(t, sc.RateLimit.Enabled)
}
