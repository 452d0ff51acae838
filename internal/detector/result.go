package detector

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/MeKo-Tech/formocr/internal/utils"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ValidateDetections checks that every box is non-empty and inside the image.
func ValidateDetections(dets []Detection, width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("invalid image dimensions for validation")
	}
	for i, d := range dets {
		if d.Box.Width() <= 0 || d.Box.Height() <= 0 {
			return fmt.Errorf("detection %d has non-positive box size", i)
		}
		if d.Box.MinX < 0 || d.Box.MinY < 0 || d.Box.MaxX > float64(width) || d.Box.MaxY > float64(height) {
			return fmt.Errorf("detection %d box out of bounds", i)
		}
	}
	return nil
}

// LabelColors are the outline colors used per class label.
var LabelColors = map[string]color.RGBA{
	LabelHeader:       {R: 220, G: 50, B: 47, A: 255},
	LabelQuestion:     {R: 38, G: 139, B: 210, A: 255},
	LabelAnswer:       {R: 133, G: 153, B: 0, A: 255},
	LabelOther:        {R: 181, G: 137, B: 0, A: 255},
	LabelFullDocument: {R: 108, G: 113, B: 196, A: 255},
}

var defaultLabelColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// VisualizeOptions controls how detections are drawn onto images.
type VisualizeOptions struct {
	Thickness  int
	DrawLabels bool
}

// VisualizeDetections draws detections onto a copy of img.
func VisualizeDetections(img image.Image, dets []Detection, opt VisualizeOptions) *image.RGBA {
	if opt.Thickness <= 0 {
		opt.Thickness = 2
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	for _, d := range dets {
		col, ok := LabelColors[d.Label]
		if !ok {
			col = defaultLabelColor
		}
		rect := d.Box.ToRect(b)
		utils.DrawRect(dst, rect, col, opt.Thickness)
		if opt.DrawLabels {
			drawLabel(dst, rect, fmt.Sprintf("%s %.2f", d.Label, d.Score), col)
		}
	}
	return dst
}

// drawLabel writes text on a filled tag just above rect, or inside it at the top edge.
func drawLabel(dst *image.RGBA, rect image.Rectangle, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := rect.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	tag := image.Rect(rect.Min.X, top, rect.Min.X+width, top+height)
	utils.FillRect(dst, tag, bg)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(tag.Min.X+2, tag.Min.Y+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
