package pipeline

import (
	"errors"
	"slices"

	"github.com/MeKo-Tech/formocr/internal/detector"
)

// RegionResult is one detected region with the text read from it.
type RegionResult struct {
	BBox  [4]int  `json:"bbox"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
	Text  string  `json:"text"`
	// OCRConfidence is nil when OCR failed for this region.
	OCRConfidence *float64 `json:"ocr_confidence"`
}

// OCRFailed reports whether OCR failed for the region.
func (r RegionResult) OCRFailed() bool { return r.OCRConfidence == nil }

// Processing carries per-document diagnostics.
type Processing struct {
	Candidates    int     `json:"candidates"`
	CoverageRatio float64 `json:"coverage_ratio"`
	OCRFailures   int     `json:"ocr_failures"`
	DetectionNs   int64   `json:"detection_ns"`
	OCRNs         int64   `json:"ocr_ns"`
	TotalNs       int64   `json:"total_ns"`
	Cached        bool    `json:"cached"`
}

// Result is the outcome of one extraction. A non-empty Error marks a failed or
// degraded extraction; Regions may still hold diagnostics in that case.
type Result struct {
	Text       string         `json:"text"`
	Regions    []RegionResult `json:"regions"`
	Error      string         `json:"error,omitempty"`
	Fallback   bool           `json:"fallback"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Processing Processing     `json:"processing"`

	err error
}

// Err returns the typed error behind Error, or nil on success.
func (r *Result) Err() error {
	if r == nil || r.Error == "" {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Error)
}

// OK reports whether the extraction produced text without error.
func (r *Result) OK() bool { return r != nil && r.Error == "" }

func (r *Result) fail(err error) *Result {
	r.err = err
	r.Error = err.Error()
	return r
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Regions = slices.Clone(r.Regions)
	for i := range out.Regions {
		if c := out.Regions[i].OCRConfidence; c != nil {
			v := *c
			out.Regions[i].OCRConfidence = &v
		}
	}
	return &out
}

// Detections converts the regions back into detections, e.g. for drawing.
func (r *Result) Detections() []detector.Detection {
	out := make([]detector.Detection, 0, len(r.Regions))
	for _, reg := range r.Regions {
		d := detector.Detection{Score: reg.Score, Label: reg.Label}
		d.Box.MinX, d.Box.MinY = float64(reg.BBox[0]), float64(reg.BBox[1])
		d.Box.MaxX, d.Box.MaxY = float64(reg.BBox[2]), float64(reg.BBox[3])
		out = append(out, d)
	}
	return out
}

func regionFromDetection(d detector.Detection) RegionResult {
	return RegionResult{BBox: d.BBox(), Score: d.Score, Label: d.Label}
}

// NewFailedResult returns a result carrying err, for callers that fail a
// document before or around the pipeline (timeouts, rejected uploads).
func NewFailedResult(err error) *Result {
	return (&Result{Regions: []RegionResult{}}).fail(err)
}
