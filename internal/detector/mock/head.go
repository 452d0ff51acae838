// Package mock provides synthetic detector outputs and a scriptable Head.
package mock

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/formocr/internal/detector"
)

// Background values for cells that are not explicitly set.
const (
	BackgroundObjectness = 0.01
	hotLogit             = 5.0
)

// Cell describes one grid cell of a synthetic output.
type Cell struct {
	GX, GY int
	Obj    float32
	// Box is (cx_rel, cy_rel, w_rel, h_rel).
	Box   [4]float32
	Class int
}

// NewGrid builds a w×h output with numClasses classes. Unset cells have low
// objectness and a zero box; each listed cell gets a one-hot logit for Class.
func NewGrid(w, h, numClasses int, cells ...Cell) detector.GridOutput {
	out := detector.GridOutput{
		GridW:       w,
		GridH:       h,
		NumClasses:  numClasses,
		Objectness:  make([]float32, w*h),
		Boxes:       make([]float32, w*h*4),
		ClassLogits: make([]float32, w*h*numClasses),
	}
	for i := range out.Objectness {
		out.Objectness[i] = BackgroundObjectness
	}
	for _, c := range cells {
		SetCell(&out, c)
	}
	return out
}

// SetCell writes c into out.
func SetCell(out *detector.GridOutput, c Cell) {
	idx := c.GY*out.GridW + c.GX
	out.Objectness[idx] = c.Obj
	copy(out.Boxes[idx*4:idx*4+4], c.Box[:])
	logits := out.ClassLogits[idx*out.NumClasses : (idx+1)*out.NumClasses]
	for i := range logits {
		logits[i] = 0
	}
	if c.Class >= 0 && c.Class < out.NumClasses {
		logits[c.Class] = hotLogit
	}
}

// Head returns a fixed output, or Err, from every Forward call.
type Head struct {
	mu      sync.Mutex
	Output  detector.GridOutput
	Err     error
	calls   atomic.Int64
	closed  atomic.Bool
	lastImg detector.PreparedImage
}

// NewHead returns a head that always produces out.
func NewHead(out detector.GridOutput) *Head {
	return &Head{Output: out}
}

// Forward implements detector.Head.
func (h *Head) Forward(ctx context.Context, img detector.PreparedImage) (detector.GridOutput, error) {
	h.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return detector.GridOutput{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastImg = img
	if h.Err != nil {
		return detector.GridOutput{}, h.Err
	}
	out := h.Output
	out.Objectness = slices.Clone(out.Objectness)
	out.Boxes = slices.Clone(out.Boxes)
	out.ClassLogits = slices.Clone(out.ClassLogits)
	return out, nil
}

// Close implements detector.Head.
func (h *Head) Close() error {
	h.closed.Store(true)
	return nil
}

// Calls returns the number of Forward calls.
func (h *Head) Calls() int { return int(h.calls.Load()) }

// Closed reports whether Close was called.
func (h *Head) Closed() bool { return h.closed.Load() }

// LastImage returns the most recent prepared input.
func (h *Head) LastImage() detector.PreparedImage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastImg
}

// Factory returns a HeadFactory that always yields h.
func Factory(h *Head) detector.HeadFactory {
	return func() (detector.Head, error) { return h, nil }
}

// FailingFactory returns a HeadFactory that always fails with err.
func FailingFactory(err error) detector.HeadFactory {
	return func() (detector.Head, error) { return nil, err }
}
