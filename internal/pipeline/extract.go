package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/utils"
)

// Extraction errors reported through Result.Error.
var (
	ErrModelUnavailable = detector.ErrModelUnavailable
	ErrNoDetections     = errors.New("CNN detection returned no regions")
	//nolint:staticcheck // ST1005: the message is returned to API clients verbatim
	ErrEmptyExtraction = errors.New("No text extracted from detected regions")
)

func noDetections(threshold float64) error {
	return fmt.Errorf("%w (threshold=%v)", ErrNoDetections, threshold)
}

func errorIs(res *Result, target error) bool { return errors.Is(res.Err(), target) }

// imageSource yields the decoded image and, when available, its encoded bytes.
type imageSource func() (image.Image, []byte, error)

// ExtractDocumentText reads the image at path and extracts its text.
func (p *Pipeline) ExtractDocumentText(ctx context.Context, path string) *Result {
	return p.extract(ctx, func() (image.Image, []byte, error) {
		img, raw, _, err := utils.LoadImage(path)
		return img, raw, err
	})
}

// ExtractBytes decodes an encoded image and extracts its text.
func (p *Pipeline) ExtractBytes(ctx context.Context, data []byte) *Result {
	return p.extract(ctx, func() (image.Image, []byte, error) {
		img, _, err := utils.DecodeImage(data)
		return img, data, err
	})
}

// ExtractImage extracts the text of an already decoded image.
func (p *Pipeline) ExtractImage(ctx context.Context, img image.Image) *Result {
	return p.extract(ctx, func() (image.Image, []byte, error) {
		if img == nil {
			return nil, nil, errors.New("input image is nil")
		}
		return img, nil, nil
	})
}

func (p *Pipeline) extract(ctx context.Context, load imageSource) (res *Result) {
	start := time.Now()
	res = &Result{Regions: []RegionResult{}}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("extraction panicked", "panic", r)
			res = (&Result{Regions: []RegionResult{}}).fail(fmt.Errorf("internal error: %v", r))
		}
		res.Processing.TotalNs = time.Since(start).Nanoseconds()
		if res.OK() {
			if err := ValidateResult(res); err != nil {
				slog.Warn("inconsistent extraction result", "error", err)
			}
		}
		recordMetrics(res)
	}()

	if _, err := p.Detector.Head(); err != nil {
		return res.fail(err)
	}

	img, raw, err := load()
	if err != nil {
		return res.fail(err)
	}
	rgb, err := utils.ToRGB(img)
	if err != nil {
		return res.fail(err)
	}
	res.Width, res.Height = rgb.Bounds().Dx(), rgb.Bounds().Dy()

	key := ""
	if p.cache != nil {
		if raw == nil {
			raw, err = utils.EncodePNG(rgb)
			if err != nil {
				return res.fail(err)
			}
		}
		key = p.cacheKey(raw)
		if hit, ok := p.cacheGet(ctx, key); ok {
			return hit
		}
	}

	p.run(ctx, rgb, res)

	if key != "" && res.Error == "" {
		p.cachePut(ctx, key, res)
	}
	return res
}

// run executes detection, the coverage policy and per-region OCR on an RGB image.
func (p *Pipeline) run(ctx context.Context, rgb *image.NRGBA, res *Result) {
	cfg := p.Detector.GetConfig()

	det, err := p.Detector.Detect(ctx, rgb)
	if err != nil {
		res.fail(err)
		return
	}
	res.Processing.DetectionNs = det.InferenceTime.Nanoseconds()
	res.Processing.Candidates = det.Candidates

	if len(det.Detections) == 0 {
		res.fail(noDetections(cfg.ObjectnessThreshold))
		return
	}

	regions, decision := cfg.Coverage.Apply(det.Detections, res.Width, res.Height)
	res.Fallback = decision.Fallback
	res.Processing.CoverageRatio = decision.Ratio
	if decision.Fallback {
		slog.Debug("coverage fallback, reading whole page",
			"coverage", decision.Ratio, "detections", len(det.Detections))
	}

	ocrStart := time.Now()
	out := make([]RegionResult, 0, len(regions))
	var crops []image.Image
	for i, d := range regions {
		if err := ctx.Err(); err != nil {
			res.fail(err)
			return
		}
		region, crop, ocrErr := p.readRegion(ctx, rgb, d, i)
		if ocrErr != nil {
			res.Processing.OCRFailures++
			// the whole page is the only region, so its failure is the document's
			if decision.Fallback {
				res.fail(ocrErr)
				return
			}
		}
		out = append(out, region)
		if p.cfg.DebugDir != "" {
			crops = append(crops, crop)
		}
	}
	if err := ctx.Err(); err != nil {
		res.fail(err)
		return
	}
	res.Processing.OCRNs = time.Since(ocrStart).Nanoseconds()
	res.Regions = out

	if p.cfg.DebugDir != "" {
		if err := writeDebug(p.cfg.DebugDir, rgb, regions, crops); err != nil {
			slog.Warn("failed to write debug output", "dir", p.cfg.DebugDir, "error", err)
		}
	}

	res.Text = joinRegionText(out)
	if res.Text == "" {
		res.fail(ErrEmptyExtraction)
	}
}

// readRegion crops one detection and runs OCR on it. A failed region keeps
// empty text and a nil confidence; the error is returned alongside it.
func (p *Pipeline) readRegion(ctx context.Context, rgb *image.NRGBA, d detector.Detection, index int) (RegionResult, image.Image, error) {
	region := regionFromDetection(d)
	crop := utils.CropImageBox(rgb, d.Box)

	data, err := utils.EncodePNG(crop)
	if err == nil {
		r, ocrErr := p.OCR.Extract(ctx, data)
		if ocrErr == nil {
			conf := r.Confidence
			region.Text = r.Text
			region.OCRConfidence = &conf
			return region, crop, nil
		}
		err = ocrErr
	}
	slog.Warn("region OCR failed", "region", index, "label", d.Label, "error", err)
	return region, crop, err
}

// joinRegionText joins non-empty region texts in region order and trims the result.
func joinRegionText(regions []RegionResult) string {
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
