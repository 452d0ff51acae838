package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/utils"
)

// writeDebug dumps each region crop as region_<i>_<label>.png plus an overlay of all boxes.
func writeDebug(dir string, img image.Image, regions []detector.Detection, crops []image.Image) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for i, crop := range crops {
		if crop == nil || crop.Bounds().Empty() {
			continue
		}
		label := regions[i].Label
		if err := writePNG(filepath.Join(dir, fmt.Sprintf("region_%d_%s.png", i, label)), crop); err != nil {
			return err
		}
	}
	overlay := RenderOverlay(img, regions)
	return writePNG(filepath.Join(dir, "overlay.png"), overlay)
}

// RenderOverlay draws labeled region boxes on a copy of img.
func RenderOverlay(img image.Image, regions []detector.Detection) *image.RGBA {
	return detector.VisualizeDetections(img, regions, detector.VisualizeOptions{Thickness: 2, DrawLabels: true})
}

func writePNG(path string, img image.Image) error {
	data, err := utils.EncodePNG(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
