package detector

import (
	"slices"

	"github.com/MeKo-Tech/formocr/internal/utils"
)

// Suppression defaults.
const (
	DefaultNMSThreshold  = 0.5
	DefaultMaxDetections = 50
)

// Suppress performs greedy non-maximum suppression. Detections are visited in
// descending score order; a candidate survives only if its IoU with every kept
// detection is strictly below iouThreshold. The survivors are then capped at
// maxDetections (a value <= 0 disables the cap). dets is not modified.
func Suppress(dets []Detection, iouThreshold float64, maxDetections int) []Detection {
	if len(dets) == 0 {
		return []Detection{}
	}

	ordered := slices.Clone(dets)
	sortByScore(ordered)

	kept := make([]Detection, 0, len(ordered))
	for _, cand := range ordered {
		if maxDetections > 0 && len(kept) >= maxDetections {
			break
		}
		if overlapsAny(cand.Box, kept, iouThreshold) {
			continue
		}
		kept = append(kept, cand)
	}
	return kept
}

func overlapsAny(box utils.Box, kept []Detection, iouThreshold float64) bool {
	for _, k := range kept {
		if utils.IntersectionOverUnion(k.Box, box) >= iouThreshold {
			return true
		}
	}
	return false
}
