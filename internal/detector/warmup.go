package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// Warmup runs forward passes on a blank page at the minimum prepared size to
// reduce first-request latency.
func (h *OnnxHead) Warmup(iterations int) error {
	if iterations <= 0 {
		return nil
	}

	h.mu.RLock()
	ready := h.session != nil
	w, ht := h.config.MinWidth, h.config.MinHeight
	h.mu.RUnlock()
	if !ready {
		return errors.New("detector session is nil")
	}
	if w <= 0 || ht <= 0 {
		w, ht = DefaultMinWidth, DefaultMinHeight
	}

	blank := image.NewNRGBA(image.Rect(0, 0, w, ht))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	prep := PreparedImage{Image: blank, Width: w, Height: ht, ScaleX: 1, ScaleY: 1}

	start := time.Now()
	for i := range iterations {
		if _, err := h.Forward(context.Background(), prep); err != nil {
			return fmt.Errorf("warmup iteration %d failed: %w", i+1, err)
		}
	}
	slog.Debug("detector warmup complete", "iterations", iterations, "duration", time.Since(start))
	return nil
}
