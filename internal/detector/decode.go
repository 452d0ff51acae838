package detector

import (
	"slices"

	"github.com/MeKo-Tech/formocr/internal/utils"
)

// DefaultObjectnessThreshold is the strict lower bound on cell objectness.
const DefaultObjectnessThreshold = 0.7

// Decode turns the head output into detections in original-image coordinates.
// A cell is decoded iff its objectness is strictly greater than threshold. The
// result is ordered by score, highest first; ties keep grid scan order.
func Decode(out GridOutput, threshold float64, prep PreparedImage) []Detection {
	if out.Validate() != nil || prep.Width <= 0 || prep.Height <= 0 {
		return nil
	}

	pw, ph := float64(prep.Width), float64(prep.Height)
	var dets []Detection
	for gy := range out.GridH {
		for gx := range out.GridW {
			obj := float64(out.Obj(gx, gy))
			if !(obj > threshold) {
				continue
			}

			b := out.Box(gx, gy)
			cx, cy := utils.CellCenter(gx, gy, out.GridW, out.GridH, float64(b[0]), float64(b[1]))
			w := max(float64(b[2])*pw, 1.0)
			h := max(float64(b[3])*ph, 1.0)

			box := utils.BoxFromCenter(cx*pw, cy*ph, w, h, pw, ph)
			if box.MaxX <= box.MinX || box.MaxY <= box.MinY {
				continue
			}

			classID := argmax(out.Logits(gx, gy))
			dets = append(dets, Detection{
				Box:     utils.TruncateBox(utils.ScaleBox(box, prep.ScaleX, prep.ScaleY)),
				Score:   obj,
				ClassID: classID,
				Label:   ClassLabel(classID),
				GridX:   gx,
				GridY:   gy,
			})
		}
	}

	sortByScore(dets)
	return dets
}

// argmax returns the index of the largest value; the lowest index wins ties.
func argmax(vals []float32) int {
	best := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[best] {
			best = i
		}
	}
	return best
}

// sortByScore sorts detections by descending score, keeping input order for equal scores.
func sortByScore(dets []Detection) {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}
