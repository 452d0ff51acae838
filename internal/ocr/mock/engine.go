// Package mock provides a scriptable OCR engine.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/formocr/internal/ocr"
)

// RecognizeFunc answers one image.
type RecognizeFunc func(call int, image []byte) (*ocr.Document, error)

// Engine answers Recognize calls through Fn. Calls are numbered from 0.
type Engine struct {
	Fn RecognizeFunc

	calls  atomic.Int64
	closed atomic.Bool
	mu     sync.Mutex
	images [][]byte
}

// NewEngine returns an engine driven by fn.
func NewEngine(fn RecognizeFunc) *Engine { return &Engine{Fn: fn} }

// Fixed returns an engine that reads every image as the given words, each with confidence conf.
func Fixed(conf float64, words ...string) *Engine {
	return NewEngine(func(int, []byte) (*ocr.Document, error) {
		return Doc(conf, words...), nil
	})
}

// Doc builds a one-page, one-line document.
func Doc(conf float64, words ...string) *ocr.Document {
	line := ocr.Line{}
	for _, w := range words {
		line.Words = append(line.Words, ocr.Word{Text: w, Confidence: ocr.Conf(conf)})
	}
	return &ocr.Document{Pages: []ocr.Page{{Blocks: []ocr.Block{{Lines: []ocr.Line{line}}}}}}
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, images [][]byte) (*ocr.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := &ocr.Document{}
	for _, img := range images {
		n := int(e.calls.Add(1)) - 1
		e.mu.Lock()
		e.images = append(e.images, img)
		e.mu.Unlock()

		part, err := e.Fn(n, img)
		if err != nil {
			return nil, err
		}
		if part != nil {
			doc.Pages = append(doc.Pages, part.Pages...)
		}
	}
	return doc, nil
}

// Close implements ocr.Engine.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Calls returns how many images were recognized.
func (e *Engine) Calls() int { return int(e.calls.Load()) }

// Closed reports whether Close was called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Images returns copies of the received payload slices.
func (e *Engine) Images() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.images))
	copy(out, e.images)
	return out
}

// Factory returns an EngineFactory that always yields e.
func Factory(e *Engine) ocr.EngineFactory {
	return func(context.Context) (ocr.Engine, error) { return e, nil }
}
