package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ToRGB converts any image to an opaque NRGBA image with origin (0,0).
// Color channels are kept as stored (straight alpha) and alpha is forced to 255,
// which matches a plain RGB conversion that discards transparency.
func ToRGB(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "rgb", Err: errors.New("input image is nil")}
	}
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out, nil
}

// ResizeExact resizes to exactly width×height without preserving the aspect ratio.
// Bicubic (Catmull-Rom) resampling is used.
func ResizeExact(img image.Image, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{
			Operation: "resize",
			Err:       fmt.Errorf("invalid target dimensions: %dx%d", width, height),
		}
	}
	return imaging.Resize(img, width, height, imaging.CatmullRom), nil
}

// NormalizeImageInto converts an image into a CHW float32 tensor body:
// - RGB channel order, alpha dropped
// - pixel values scaled from 0-255 to 0-1, no mean/std shift.
// dst is reused when it has room for 3*width*height values, and the returned
// slice aliases it in that case; otherwise a new slice is allocated.
func NormalizeImageInto(img image.Image, dst []float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(img)
	}
	width := nrgba.Rect.Dx()
	height := nrgba.Rect.Dy()
	plane := width * height
	tensor := dst
	if cap(tensor) < 3*plane {
		tensor = make([]float32, 3*plane)
	}
	tensor = tensor[:3*plane]

	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+width*4]
		for x := range width {
			px := row[x*4 : x*4+4]
			idx := y*width + x
			tensor[idx] = float32(px[0]) / 255.0
			tensor[plane+idx] = float32(px[1]) / 255.0
			tensor[2*plane+idx] = float32(px[2]) / 255.0
		}
	}

	return tensor, width, height, nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "encode", Err: errors.New("input image is nil")}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &ImageProcessingError{Operation: "encode", Err: err}
	}
	return buf.Bytes(), nil
}
