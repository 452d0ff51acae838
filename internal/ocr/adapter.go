package ocr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Engine recognizes text in encoded images, one page per image.
type Engine interface {
	Recognize(ctx context.Context, images [][]byte) (*Document, error)
	Close() error
}

// EngineFactory creates an Engine.
type EngineFactory func(ctx context.Context) (Engine, error)

// Adapter owns a lazily created engine and turns its output into a Result.
// The engine is created at most once; a failed creation is reported to every caller.
type Adapter struct {
	factory   EngineFactory
	normalize bool
	name      string

	once   sync.Once
	mu     sync.RWMutex
	engine Engine
	err    error
	closed bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithNormalization toggles NFC/zero-width cleanup of word text.
func WithNormalization(enabled bool) AdapterOption {
	return func(a *Adapter) { a.normalize = enabled }
}

// WithName sets the engine name reported by Info.
func WithName(name string) AdapterOption {
	return func(a *Adapter) { a.name = name }
}

// NewAdapter creates an adapter around factory.
func NewAdapter(factory EngineFactory, opts ...AdapterOption) *Adapter {
	a := &Adapter{factory: factory, normalize: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) getEngine(ctx context.Context) (Engine, error) {
	a.once.Do(func() {
		a.mu.RLock()
		closed := a.closed
		a.mu.RUnlock()

		var e Engine
		var err error
		switch {
		case closed:
			err = ErrEngineClosed
		case a.factory == nil:
			err = errors.New("no engine factory configured")
		default:
			// initialization outlives the first caller's deadline
			e, err = a.factory(context.WithoutCancel(ctx))
		}
		if err != nil {
			slog.Error("OCR engine initialization failed", "engine", a.name, "error", err)
		}
		a.mu.Lock()
		a.engine, a.err = e, err
		a.mu.Unlock()
	})

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrEngineClosed
	}
	return a.engine, a.err
}

// Extract reads one encoded image.
func (a *Adapter) Extract(ctx context.Context, image []byte) (Result, error) {
	const op = "Extract"
	if len(image) == 0 {
		return Result{}, NewOCRError(op, ErrEmptyImage, "")
	}

	engine, err := a.getEngine(ctx)
	if err != nil {
		return Result{}, WrapOCRError(op, err, "engine unavailable")
	}

	doc, err := engine.Recognize(ctx, [][]byte{image})
	if err != nil {
		return Result{}, WrapOCRError(op, err, "recognition failed")
	}
	if a.normalize {
		normalizeDocument(doc)
	}
	return Flatten(doc), nil
}

// Ready forces engine creation and reports its error, if any.
func (a *Adapter) Ready(ctx context.Context) error {
	_, err := a.getEngine(ctx)
	return err
}

// Name returns the configured engine name.
func (a *Adapter) Name() string { return a.name }

// Close releases the engine if it was created.
func (a *Adapter) Close() error {
	a.mu.Lock()
	e := a.engine
	a.engine = nil
	a.closed = true
	a.mu.Unlock()
	if e != nil {
		return e.Close()
	}
	return nil
}
