package pipeline_test

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/formocr/internal/cache"
	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/detector/mock"
	"github.com/MeKo-Tech/formocr/internal/ocr"
	ocrmock "github.com/MeKo-Tech/formocr/internal/ocr/mock"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
)

const numClasses = 4

func page(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 250, 250, 250, 255
	}
	// a dark mark so crops are not uniform
	for y := 10; y < 20 && y < h; y++ {
		for x := 10; x < 40 && x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	return img
}

type setup struct {
	head     *mock.Head
	engine   *ocrmock.Engine
	headErr  error
	cache    cache.Client
	debugDir string
	loads    *int
}

func build(t *testing.T, s setup) *pipeline.Pipeline {
	t.Helper()
	b := pipeline.NewBuilder().
		WithDetectorModelPath("form_detector.onnx").
		WithOCRBackend("mock").
		WithDebugDir(s.debugDir)

	switch {
	case s.headErr != nil:
		b.WithHeadFactory(mock.FailingFactory(s.headErr))
	case s.loads != nil:
		b.WithHeadFactory(func() (detector.Head, error) {
			*s.loads++
			return s.head, nil
		})
	default:
		b.WithHeadFactory(mock.Factory(s.head))
	}
	if s.engine != nil {
		b.WithEngineFactory(ocrmock.Factory(s.engine))
	} else {
		b.WithEngineFactory(func(context.Context) (ocr.Engine, error) { return ocrmock.Fixed(0.9, "unused"), nil })
	}
	if s.cache != nil {
		b.WithCacheClient(s.cache)
	}

	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// quadrantGrid describes a 1000×1000 page whose kept boxes cover 2.25 times the page:
// the whole page, its four quadrants and a centered quarter.
func quadrantGrid() detector.GridOutput {
	return mock.NewGrid(10, 10, numClasses,
		mock.Cell{GX: 5, GY: 5, Obj: 0.99, Box: [4]float32{0, 0, 1, 1}, Class: 3},
		mock.Cell{GX: 2, GY: 2, Obj: 0.95, Box: [4]float32{0.5, 0.5, 0.5, 0.5}, Class: 0},
		mock.Cell{GX: 7, GY: 2, Obj: 0.94, Box: [4]float32{0.5, 0.5, 0.5, 0.5}, Class: 1},
		mock.Cell{GX: 2, GY: 7, Obj: 0.93, Box: [4]float32{0.5, 0.5, 0.5, 0.5}, Class: 2},
		mock.Cell{GX: 7, GY: 7, Obj: 0.92, Box: [4]float32{0.5, 0.5, 0.5, 0.5}, Class: 2},
		mock.Cell{GX: 4, GY: 4, Obj: 0.91, Box: [4]float32{1, 1, 0.5, 0.5}, Class: 3},
	)
}

// threeRegionGrid holds three disjoint regions on a 1000×1000 page.
func threeRegionGrid() detector.GridOutput {
	return mock.NewGrid(10, 10, numClasses,
		mock.Cell{GX: 1, GY: 1, Obj: 0.95, Box: [4]float32{0.5, 0.5, 0.125, 0.0625}, Class: 0},
		mock.Cell{GX: 1, GY: 5, Obj: 0.9, Box: [4]float32{0.5, 0.5, 0.125, 0.0625}, Class: 1},
		mock.Cell{GX: 6, GY: 5, Obj: 0.85, Box: [4]float32{0.5, 0.5, 0.125, 0.0625}, Class: 2},
	)
}
