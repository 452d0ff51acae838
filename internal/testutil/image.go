package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Field is one labelled input box on a synthetic form.
type Field struct {
	Label string
	Rect  image.Rectangle
}

// FormConfig describes a synthetic scanned form.
type FormConfig struct {
	Width, Height int
	Background    color.Color
	Ink           color.Color
	Fields        []Field
}

// DefaultFormConfig returns a 1000×1000 page with two fields.
func DefaultFormConfig() FormConfig {
	return FormConfig{
		Width:      1000,
		Height:     1000,
		Background: color.White,
		Ink:        color.Black,
		Fields: []Field{
			{Label: "Name", Rect: image.Rect(100, 100, 500, 160)},
			{Label: "Date", Rect: image.Rect(100, 300, 400, 360)},
		},
	}
}

// GenerateFormImage renders the form: a blank page with outlined, labelled fields.
func GenerateFormImage(cfg FormConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	for _, f := range cfg.Fields {
		outline(img, f.Rect, cfg.Ink)
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(cfg.Ink),
			Face: face,
			Dot:  fixed.P(f.Rect.Min.X+4, f.Rect.Min.Y+face.Metrics().Ascent.Ceil()+4),
		}
		d.DrawString(f.Label)
	}
	return img
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// CreateTestImage creates a uniform image of the given size.
func CreateTestImage(width, height int, background color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// SaveImage saves an image as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	file, err := os.Create(path) //nolint:gosec // G304: test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()
	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// WriteForm renders the default form into dir/name and returns the path.
func WriteForm(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	SaveImage(t, GenerateFormImage(DefaultFormConfig()), path)
	return path
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")
	return img
}

// CompareImages reports whether the mean per-pixel difference is within tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}

	var total, count float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			count++
		}
	}
	if count == 0 {
		return true
	}
	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return total/count/maxDiff <= tolerance
}
