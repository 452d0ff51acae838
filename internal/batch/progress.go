package batch

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// ProgressCallback receives batch progress updates. Calls are serialized.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnError(file string, err error)
	OnComplete()
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)           {}
func (NoOpProgressCallback) OnProgress(int, int)   {}
func (NoOpProgressCallback) OnError(string, error) {}
func (NoOpProgressCallback) OnComplete()           {}

// BarProgress renders progress as a terminal bar.
type BarProgress struct {
	writer      io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewBarProgress creates a progress bar writing to w (stderr when nil).
func NewBarProgress(w io.Writer, description string) *BarProgress {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgress{writer: w, description: description}
}

func (p *BarProgress) OnStart(total int) {
	w := p.writer
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *BarProgress) OnProgress(current, _ int) {
	if p.bar != nil {
		_ = p.bar.Set(current)
	}
}

func (p *BarProgress) OnError(file string, err error) {
	slog.Debug("document failed", "file", file, "error", err)
	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("%s (last error: %s)", p.description, file))
	}
}

func (p *BarProgress) OnComplete() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
