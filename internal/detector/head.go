package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrModelUnavailable reports that the detector weights could not be loaded.
var ErrModelUnavailable = errors.New("detector model unavailable")

// ModelError describes a failed model load. Its message is the user-facing
// "Model weights not found at <path>"; the cause is kept for errors.As/Unwrap.
type ModelError struct {
	Path string
	Err  error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("Model weights not found at %s", e.Path)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Is matches ErrModelUnavailable.
func (e *ModelError) Is(target error) bool { return target == ErrModelUnavailable }

// Head runs the detection network on a prepared image.
type Head interface {
	Forward(ctx context.Context, img PreparedImage) (GridOutput, error)
	Close() error
}

// HeadFactory constructs a Head.
type HeadFactory func() (Head, error)

// HeadLoader creates its head on first use and shares it between callers.
// A failed load is remembered and returned to every later caller.
type HeadLoader struct {
	factory HeadFactory
	once    sync.Once
	mu      sync.Mutex
	head    Head
	err     error
}

// NewHeadLoader wraps factory.
func NewHeadLoader(factory HeadFactory) *HeadLoader {
	return &HeadLoader{factory: factory}
}

// Get returns the shared head, loading it on the first call.
func (l *HeadLoader) Get() (Head, error) {
	l.once.Do(func() {
		var h Head
		var err error
		if l.factory == nil {
			err = errors.New("no head factory configured")
		} else {
			h, err = l.factory()
		}
		l.mu.Lock()
		l.head, l.err = h, err
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.head == nil {
		return nil, errors.New("detector head is closed")
	}
	return l.head, nil
}

// Loaded reports whether a head has been created successfully.
func (l *HeadLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head != nil
}

// Close releases the head if it was loaded.
func (l *HeadLoader) Close() error {
	l.mu.Lock()
	h := l.head
	l.head = nil
	l.mu.Unlock()
	if h != nil {
		return h.Close()
	}
	return nil
}
