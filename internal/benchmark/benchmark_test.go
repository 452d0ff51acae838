package benchmark

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

type fakeExtractor struct {
	calls map[string]int
	fail  map[string]bool
}

func (f *fakeExtractor) ExtractDocumentText(_ context.Context, path string) *pipeline.Result {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[path]++
	if f.fail[path] {
		return pipeline.NewFailedResult(errors.New("boom"))
	}
	res := &pipeline.Result{Text: "x", Regions: []pipeline.RegionResult{{}, {}}}
	res.Processing.DetectionNs = int64(2 * time.Millisecond)
	res.Processing.OCRNs = int64(4 * time.Millisecond)
	return res
}

func TestTimer(t *testing.T) {
	timer := NewTimer("load")
	time.Sleep(time.Millisecond)
	d := timer.Stop()
	assert.GreaterOrEqual(t, d, time.Millisecond)
	assert.Equal(t, d, timer.Duration())
	assert.Contains(t, timer.String(), "load: ")
}

func TestMemoryStats(t *testing.T) {
	stats := GetMemoryStats()
	assert.Positive(t, stats.SysBytes)
	assert.Contains(t, stats.String(), "Alloc:")
}

func TestRun(t *testing.T) {
	ext := &fakeExtractor{fail: map[string]bool{"bad.png": true}}
	rep, err := Run(context.Background(), "cpu", ext, []string{"a.png", "bad.png"}, Options{Iterations: 4, Warmup: 1})
	require.NoError(t, err)

	assert.Equal(t, 5, ext.calls["a.png"])
	assert.Equal(t, 5, ext.calls["bad.png"])
	require.Len(t, rep.Files, 2)

	a := rep.Files[0]
	assert.Equal(t, "a.png", a.File)
	assert.Equal(t, 4, a.Iterations)
	assert.Zero(t, a.Failures)
	assert.Equal(t, 2, a.Regions)
	assert.Equal(t, 2*time.Millisecond, a.DetectionMean)
	assert.Equal(t, 4*time.Millisecond, a.OCRMean)
	assert.LessOrEqual(t, a.Min, a.P50)
	assert.LessOrEqual(t, a.P50, a.P95)
	assert.LessOrEqual(t, a.P95, a.Max)

	bad := rep.Files[1]
	assert.Equal(t, 4, bad.Failures)
	assert.Equal(t, "boom", bad.LastError)

	var buf bytes.Buffer
	rep.Write(&buf)
	assert.Contains(t, buf.String(), "a.png: 4 iterations")
	assert.Contains(t, buf.String(), "4 failure(s), last: boom")
}

func TestRunValidation(t *testing.T) {
	_, err := Run(context.Background(), "cpu", &fakeExtractor{}, []string{"a.png"}, Options{})
	require.Error(t, err)

	_, err = Run(context.Background(), "cpu", &fakeExtractor{}, nil, Options{Iterations: 1})
	require.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, "cpu", &fakeExtractor{}, []string{"a.png"}, Options{Iterations: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 0.50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 0.95))
	assert.Equal(t, time.Duration(7), percentile([]time.Duration{7}, 0.95))
}

func TestComparison(t *testing.T) {
	cpu := &Report{Files: []FileStats{{Mean: 300 * time.Millisecond}}}
	gpu := &Report{Files: []FileStats{{Mean: 100 * time.Millisecond}}}

	c := Comparison{CPU: cpu, GPU: gpu}
	assert.InDelta(t, 3.0, c.Speedup(), 1e-9)
	assert.Contains(t, c.String(), "3.00x faster")

	slow := Comparison{CPU: gpu, GPU: cpu}
	assert.Contains(t, slow.String(), "3.00x slower")

	cpuOnly := Comparison{CPU: cpu}
	assert.Zero(t, cpuOnly.Speedup())
	assert.Contains(t, cpuOnly.String(), "GPU not available")
}
