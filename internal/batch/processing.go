package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

// Extractor is the part of the pipeline the batch runner needs.
type Extractor interface {
	ExtractDocumentText(ctx context.Context, path string) *pipeline.Result
}

// ErrAborted is returned when ContinueOnError is off and a document failed.
var ErrAborted = errors.New("batch aborted after a failed document")

// Item is the outcome for one input file.
type Item struct {
	File     string           `json:"file"`
	Result   *pipeline.Result `json:"result"`
	Duration time.Duration    `json:"duration_ns"`
}

// Result holds the result of batch processing, in input order.
type Result struct {
	Items    []Item
	Duration time.Duration
	Workers  int
}

// Succeeded counts documents without error.
func (r *Result) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Result != nil && it.Result.Error == "" {
			n++
		}
	}
	return n
}

// Failed counts documents with an error.
func (r *Result) Failed() int { return len(r.Items) - r.Succeeded() }

// Process extracts every file on cfg.Workers goroutines. Each document runs under
// its own cfg.DocumentTimeout; a timed-out document is reported, not retried.
func Process(ctx context.Context, ext Extractor, files []string, cfg Config, progress ProgressCallback) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(cfg.Workers, max(len(files), 1))
	out := &Result{Items: make([]Item, len(files)), Workers: workers}
	start := time.Now()

	var (
		mu        sync.Mutex
		done      int
		firstFail string
	)
	progress.OnStart(len(files))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				file := files[i]
				docStart := time.Now()
				var res *pipeline.Result
				if err := runCtx.Err(); err != nil {
					mu.Lock()
					if firstFail != "" {
						err = ErrAborted
					}
					mu.Unlock()
					res = pipeline.NewFailedResult(fmt.Errorf("skipped: %w", err))
				} else {
					res = extractWithTimeout(runCtx, ext, file, cfg.DocumentTimeout)
				}
				out.Items[i] = Item{File: file, Result: res, Duration: time.Since(docStart)}

				mu.Lock()
				done++
				if res.Error != "" {
					slog.Warn("document failed", "file", file, "error", res.Error)
					progress.OnError(file, res.Err())
					if !cfg.ContinueOnError && firstFail == "" {
						firstFail = file
						cancel()
					}
				}
				progress.OnProgress(done, len(files))
				mu.Unlock()
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	progress.OnComplete()
	out.Duration = time.Since(start)

	if firstFail != "" {
		return out, fmt.Errorf("%w: %s", ErrAborted, firstFail)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func extractWithTimeout(ctx context.Context, ext Extractor, path string, timeout time.Duration) *pipeline.Result {
	return pipeline.RunWithTimeout(ctx, timeout, func(ctx context.Context) *pipeline.Result {
		return ext.ExtractDocumentText(ctx, path)
	})
}
