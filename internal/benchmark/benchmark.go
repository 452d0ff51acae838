// Package benchmark measures extraction latency over a set of documents.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

// Extractor is the part of the pipeline a benchmark drives.
type Extractor interface {
	ExtractDocumentText(ctx context.Context, path string) *pipeline.Result
}

// Timer provides simple timing utilities for benchmarking.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// Options controls a benchmark run.
type Options struct {
	Iterations int // measured runs per document
	Warmup     int // unmeasured runs per document before measuring
}

// FileStats summarizes the measured runs of one document.
type FileStats struct {
	File       string
	Iterations int
	Failures   int
	LastError  string
	Regions    int

	Mean, P50, P95, Min, Max time.Duration
	DetectionMean            time.Duration
	OCRMean                  time.Duration
}

// Report is the outcome of a benchmark run.
type Report struct {
	Name         string
	Files        []FileStats
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
}

// Run extracts every file opts.Warmup+opts.Iterations times, sequentially, and
// summarizes the measured runs. Failed extractions are counted but still timed.
func Run(ctx context.Context, name string, ext Extractor, files []string, opts Options) (*Report, error) {
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", opts.Iterations)
	}
	if len(files) == 0 {
		return nil, errors.New("no files to benchmark")
	}

	// Force garbage collection before measuring
	runtime.GC()
	rep := &Report{Name: name, MemoryBefore: GetMemoryStats()}
	timer := NewTimer(name)

	for _, file := range files {
		for range opts.Warmup {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ext.ExtractDocumentText(ctx, file)
		}

		st := FileStats{File: file, Iterations: opts.Iterations}
		samples := make([]time.Duration, 0, opts.Iterations)
		var detNs, ocrNs int64
		for range opts.Iterations {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			start := time.Now()
			res := ext.ExtractDocumentText(ctx, file)
			samples = append(samples, time.Since(start))

			detNs += res.Processing.DetectionNs
			ocrNs += res.Processing.OCRNs
			st.Regions = len(res.Regions)
			if !res.OK() {
				st.Failures++
				st.LastError = res.Error
			}
		}
		summarize(&st, samples)
		st.DetectionMean = time.Duration(detNs / int64(opts.Iterations))
		st.OCRMean = time.Duration(ocrNs / int64(opts.Iterations))
		rep.Files = append(rep.Files, st)
	}

	rep.Duration = timer.Stop()
	rep.MemoryAfter = GetMemoryStats()
	return rep, nil
}

func summarize(st *FileStats, samples []time.Duration) {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	st.Mean = total / time.Duration(len(sorted))
	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.P50 = percentile(sorted, 0.50)
	st.P95 = percentile(sorted, 0.95)
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(float64(len(sorted))*p+0.999999) - 1
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

// Mean is the average per-document latency across all files.
func (r *Report) Mean() time.Duration {
	if len(r.Files) == 0 {
		return 0
	}
	var total time.Duration
	for _, f := range r.Files {
		total += f.Mean
	}
	return total / time.Duration(len(r.Files))
}

// Write prints a human-readable table of the report.
func (r *Report) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n%s\n", r.Name)
	for _, f := range r.Files {
		_, _ = fmt.Fprintf(w, "  %s: %d iterations, mean %v, p50 %v, p95 %v, min %v, max %v (detect %v, ocr %v), %d region(s)\n",
			f.File, f.Iterations, f.Mean, f.P50, f.P95, f.Min, f.Max, f.DetectionMean, f.OCRMean, f.Regions)
		if f.Failures > 0 {
			_, _ = fmt.Fprintf(w, "    %d failure(s), last: %s\n", f.Failures, f.LastError)
		}
	}
	_, _ = fmt.Fprintf(w, "  total %v, memory %s\n", r.Duration, r.MemoryAfter)
}

// Comparison holds a CPU and a GPU run over the same files.
type Comparison struct {
	CPU, GPU *Report
}

// Speedup is CPU mean latency divided by GPU mean latency.
func (c Comparison) Speedup() float64 {
	if c.GPU == nil || c.GPU.Mean() == 0 {
		return 0
	}
	return float64(c.CPU.Mean()) / float64(c.GPU.Mean())
}

func (c Comparison) String() string {
	if c.GPU == nil {
		return fmt.Sprintf("GPU not available, CPU only: %v", c.CPU.Mean())
	}
	s := c.Speedup()
	speedupStr := "same speed"
	if s > 1.0 {
		speedupStr = fmt.Sprintf("%.2fx faster", s)
	} else if s > 0 && s < 1.0 {
		speedupStr = fmt.Sprintf("%.2fx slower", 1.0/s)
	}
	return fmt.Sprintf("CPU: %v, GPU: %v (%s)", c.CPU.Mean(), c.GPU.Mean(), speedupStr)
}
