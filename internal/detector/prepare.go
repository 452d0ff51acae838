package detector

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/formocr/internal/utils"
)

// Minimum prepared size. Smaller inputs are resized to exactly this size.
const (
	DefaultMinWidth  = 750
	DefaultMinHeight = 1000
)

// Prepare converts img to RGB and, when either side is below the floor, resizes it
// to exactly minW×minH without preserving the aspect ratio. Larger images pass
// through unchanged with unit scale.
func Prepare(img image.Image, minW, minH int) (PreparedImage, error) {
	if img == nil {
		return PreparedImage{}, errors.New("input image is nil")
	}
	b := img.Bounds()
	origW, origH := b.Dx(), b.Dy()
	if origW <= 0 || origH <= 0 {
		return PreparedImage{}, fmt.Errorf("invalid image dimensions %dx%d", origW, origH)
	}

	rgb, err := utils.ToRGB(img)
	if err != nil {
		return PreparedImage{}, err
	}

	if minW > 0 && minH > 0 && (origW < minW || origH < minH) {
		rgb, err = utils.ResizeExact(rgb, minW, minH)
		if err != nil {
			return PreparedImage{}, err
		}
	}

	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	return PreparedImage{
		Image:  rgb,
		Width:  w,
		Height: h,
		ScaleX: float64(origW) / float64(w),
		ScaleY: float64(origH) / float64(h),
	}, nil
}
