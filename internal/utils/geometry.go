package utils

// IntersectionOverUnion returns the overlap ratio of two boxes.
// Boxes that do not overlap, and pairs whose union is zero, yield 0.
func IntersectionOverUnion(a, b Box) float64 {
	xi1 := max(a.MinX, b.MinX)
	yi1 := max(a.MinY, b.MinY)
	xi2 := min(a.MaxX, b.MaxX)
	yi2 := min(a.MaxY, b.MaxY)

	if xi2 <= xi1 || yi2 <= yi1 {
		return 0
	}

	inter := (xi2 - xi1) * (yi2 - yi1)
	union := (a.MaxX-a.MinX)*(a.MaxY-a.MinY) + (b.MaxX-b.MinX)*(b.MaxY-b.MinY) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CellCenter maps a grid cell and its in-cell offsets to an image-normalized center.
//
//	cx = (gx + cxRel) / gridW
//	cy = (gy + cyRel) / gridH
func CellCenter(gx, gy, gridW, gridH int, cxRel, cyRel float64) (float64, float64) {
	if gridW <= 0 || gridH <= 0 {
		return 0, 0
	}
	return (float64(gx) + cxRel) / float64(gridW), (float64(gy) + cyRel) / float64(gridH)
}

// BoxFromCenter builds a box of size w×h centered on (cx, cy) and clamps it to
// [0, maxW]×[0, maxH]. The result may be empty; callers check Area().
func BoxFromCenter(cx, cy, w, h, maxW, maxH float64) Box {
	return ClampBox(Box{
		MinX: cx - w/2,
		MinY: cy - h/2,
		MaxX: cx + w/2,
		MaxY: cy + h/2,
	}, maxW, maxH)
}

// ClampBox clamps every edge to [0, maxW]×[0, maxH] without reordering.
func ClampBox(b Box, maxW, maxH float64) Box {
	return Box{
		MinX: max(0, b.MinX),
		MinY: max(0, b.MinY),
		MaxX: min(maxW, b.MaxX),
		MaxY: min(maxH, b.MaxY),
	}
}

// ScaleBox multiplies x coordinates by sx and y coordinates by sy.
func ScaleBox(b Box, sx, sy float64) Box {
	return Box{MinX: b.MinX * sx, MinY: b.MinY * sy, MaxX: b.MaxX * sx, MaxY: b.MaxY * sy}
}

// TruncateBox truncates every coordinate toward zero.
func TruncateBox(b Box) Box {
	c := b.Corners()
	return Box{MinX: float64(c[0]), MinY: float64(c[1]), MaxX: float64(c[2]), MaxY: float64(c[3])}
}
