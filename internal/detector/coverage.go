package detector

import "github.com/MeKo-Tech/formocr/internal/utils"

// CoveragePolicy decides when detections are too overlapping or too numerous to
// trust, in which case the whole page is read as a single region instead.
type CoveragePolicy struct {
	// MaxCoverage triggers the fallback when the summed box area exceeds this
	// multiple of the image area.
	MaxCoverage float64 `mapstructure:"max_coverage" yaml:"max_coverage" json:"max_coverage"`
	// CrowdedCount and CrowdedCoverage trigger the fallback together: more than
	// CrowdedCount detections covering more than CrowdedCoverage of the image.
	CrowdedCount    int     `mapstructure:"crowded_count"    yaml:"crowded_count"    json:"crowded_count"`
	CrowdedCoverage float64 `mapstructure:"crowded_coverage" yaml:"crowded_coverage" json:"crowded_coverage"`
}

// DefaultCoveragePolicy returns the standard thresholds.
func DefaultCoveragePolicy() CoveragePolicy {
	return CoveragePolicy{
		MaxCoverage:     2.0,
		CrowdedCount:    20,
		CrowdedCoverage: 1.5,
	}
}

// CoverageDecision is the outcome of evaluating a detection set.
type CoverageDecision struct {
	Ratio    float64 `json:"coverage_ratio"`
	Fallback bool    `json:"fallback"`
}

// CoverageRatio is the summed detection area divided by the image area, or 0
// for an empty image. Overlaps are counted repeatedly.
func CoverageRatio(dets []Detection, imgW, imgH int) float64 {
	imageArea := float64(imgW) * float64(imgH)
	if imageArea <= 0 {
		return 0
	}
	var total float64
	for _, d := range dets {
		total += d.Box.Width() * d.Box.Height()
	}
	return total / imageArea
}

// Evaluate computes the coverage ratio and whether the fallback applies.
func (p CoveragePolicy) Evaluate(dets []Detection, imgW, imgH int) CoverageDecision {
	ratio := CoverageRatio(dets, imgW, imgH)
	fallback := ratio > p.MaxCoverage || (len(dets) > p.CrowdedCount && ratio > p.CrowdedCoverage)
	return CoverageDecision{Ratio: ratio, Fallback: fallback}
}

// Apply returns dets unchanged, or a single full-document detection when the
// fallback applies.
func (p CoveragePolicy) Apply(dets []Detection, imgW, imgH int) ([]Detection, CoverageDecision) {
	d := p.Evaluate(dets, imgW, imgH)
	if d.Fallback {
		return []Detection{FullDocument(imgW, imgH)}, d
	}
	return dets, d
}

// FullDocument is the detection that stands for the whole image.
func FullDocument(imgW, imgH int) Detection {
	return Detection{
		Box:     utils.Box{MaxX: float64(imgW), MaxY: float64(imgH)},
		Score:   1.0,
		ClassID: -1,
		Label:   LabelFullDocument,
	}
}
