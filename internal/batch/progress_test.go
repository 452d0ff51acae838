package batch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewBarProgress(&buf, "Extracting")

	// callbacks before OnStart are ignored
	p.OnProgress(1, 2)
	p.OnError("x.png", errors.New("boom"))

	p.OnStart(2)
	p.OnProgress(1, 2)
	p.OnError("x.png", errors.New("boom"))
	p.OnProgress(2, 2)
	p.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "Extracting")
	assert.Contains(t, out, "2/2")
}

func TestNoOpProgressCallback(t *testing.T) {
	var p ProgressCallback = NoOpProgressCallback{}
	p.OnStart(1)
	p.OnProgress(1, 1)
	p.OnError("a", nil)
	p.OnComplete()
}
