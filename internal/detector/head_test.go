package detector

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHead struct{ closed atomic.Bool }

func (s *stubHead) Forward(context.Context, PreparedImage) (GridOutput, error) {
	return GridOutput{}, nil
}

func (s *stubHead) Close() error {
	s.closed.Store(true)
	return nil
}

func TestHeadLoader_LoadsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	h := &stubHead{}
	loader := NewHeadLoader(func() (Head, error) {
		calls.Add(1)
		return h, nil
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := loader.Get()
			assert.NoError(t, err)
			assert.Same(t, h, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, loader.Loaded())

	require.NoError(t, loader.Close())
	assert.True(t, h.closed.Load())
	_, err := loader.Get()
	require.Error(t, err)
}

func TestHeadLoader_FailureIsSticky(t *testing.T) {
	var calls atomic.Int32
	boom := &ModelError{Path: "/nowhere/form_detector.onnx", Err: errors.New("missing")}
	loader := NewHeadLoader(func() (Head, error) {
		calls.Add(1)
		return nil, boom
	})

	for range 3 {
		_, err := loader.Get()
		require.ErrorIs(t, err, ErrModelUnavailable)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, loader.Loaded())
	require.NoError(t, loader.Close())
}

func TestModelError(t *testing.T) {
	cause := errors.New("file missing")
	err := error(&ModelError{Path: "/m/form_detector.onnx", Err: cause})
	assert.Equal(t, "Model weights not found at /m/form_detector.onnx", err.Error())
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestNewOnnxHead_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "form_detector.onnx")

	h, err := NewOnnxHead(cfg)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), cfg.ModelPath)
}

func TestNewOnnxHead_RealModel(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		t.Skip("detector model not available, skipping test")
	}
	h, err := NewOnnxHead(cfg)
	if err != nil {
		t.Skipf("ONNX Runtime not available: %v", err)
	}
	defer func() { _ = h.Close() }()

	prep := PreparedImage{Width: 750, Height: 1000, ScaleX: 1, ScaleY: 1}
	prep.Image = blankPage(750, 1000)
	out, err := h.Forward(context.Background(), prep)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, 4, out.NumClasses)
}

func TestResolveOutputOrder(t *testing.T) {
	assert.Equal(t, [numOutputs]int{0, 1, 2}, resolveOutputOrder([]string{"a", "b", "c"}))
	assert.Equal(t, [numOutputs]int{2, 0, 1},
		resolveOutputOrder([]string{OutputObjectness, OutputClassLogits, OutputBoxes}))
	// partial match falls back to graph order
	assert.Equal(t, [numOutputs]int{0, 1, 2},
		resolveOutputOrder([]string{OutputBoxes, "obj", OutputClassLogits}))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 0.7, cfg.ObjectnessThreshold, 1e-12)
	assert.InDelta(t, 0.5, cfg.NMSThreshold, 1e-12)
	assert.Equal(t, 50, cfg.MaxDetections)
	assert.Equal(t, 750, cfg.MinWidth)
	assert.Equal(t, 1000, cfg.MinHeight)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.ModelPath = "" }},
		{"threshold too high", func(c *Config) { c.ObjectnessThreshold = 1 }},
		{"nms zero", func(c *Config) { c.NMSThreshold = 0 }},
		{"negative threads", func(c *Config) { c.NumThreads = -1 }},
		{"coverage zero", func(c *Config) { c.Coverage.MaxCoverage = 0 }},
		{"bad gpu", func(c *Config) { c.GPU.UseGPU = true; c.GPU.DeviceID = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func blankPage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}
