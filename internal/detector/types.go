package detector

import (
	"fmt"
	"image"
	"strconv"

	"github.com/MeKo-Tech/formocr/internal/utils"
)

// Class labels produced by the classification head.
const (
	LabelHeader       = "header"
	LabelQuestion     = "question"
	LabelAnswer       = "answer"
	LabelOther        = "other"
	LabelFullDocument = "full_document"
)

// classLabels maps class indices to names; indices outside the map render as decimal strings.
var classLabels = map[int]string{
	0: LabelHeader,
	1: LabelQuestion,
	2: LabelAnswer,
	3: LabelOther,
}

// ClassLabel returns the label for a class index.
func ClassLabel(id int) string {
	if l, ok := classLabels[id]; ok {
		return l
	}
	return strconv.Itoa(id)
}

// PreparedImage is the RGB image handed to the detection head together with the
// factors that map prepared-space coordinates back to the original image.
type PreparedImage struct {
	Image  *image.NRGBA
	Width  int
	Height int
	// ScaleX = original width / prepared width, ScaleY likewise.
	ScaleX float64
	ScaleY float64
}

// GridOutput holds the three per-cell head outputs for a single image, each
// stored row-major over (gy, gx) with the channel dimension last.
type GridOutput struct {
	GridW      int
	GridH      int
	NumClasses int
	// Objectness is GridH*GridW sigmoid scores.
	Objectness []float32
	// Boxes is GridH*GridW*4 sigmoid values (cx_rel, cy_rel, w_rel, h_rel).
	Boxes []float32
	// ClassLogits is GridH*GridW*NumClasses raw logits.
	ClassLogits []float32
}

// Validate checks that the buffers match the declared grid.
func (g GridOutput) Validate() error {
	if g.GridW <= 0 || g.GridH <= 0 {
		return fmt.Errorf("invalid grid size %dx%d", g.GridW, g.GridH)
	}
	if g.NumClasses <= 0 {
		return fmt.Errorf("invalid class count %d", g.NumClasses)
	}
	cells := g.GridW * g.GridH
	if len(g.Objectness) != cells {
		return fmt.Errorf("objectness length %d != %d cells", len(g.Objectness), cells)
	}
	if len(g.Boxes) != cells*4 {
		return fmt.Errorf("boxes length %d != %d", len(g.Boxes), cells*4)
	}
	if len(g.ClassLogits) != cells*g.NumClasses {
		return fmt.Errorf("class logits length %d != %d", len(g.ClassLogits), cells*g.NumClasses)
	}
	return nil
}

func (g GridOutput) cell(gx, gy int) int { return gy*g.GridW + gx }

// Obj returns the objectness score of a cell.
func (g GridOutput) Obj(gx, gy int) float32 {
	return g.Objectness[g.cell(gx, gy)]
}

// Box returns (cx_rel, cy_rel, w_rel, h_rel) for a cell.
func (g GridOutput) Box(gx, gy int) [4]float32 {
	i := g.cell(gx, gy) * 4
	return [4]float32{g.Boxes[i], g.Boxes[i+1], g.Boxes[i+2], g.Boxes[i+3]}
}

// Logits returns the class logits of a cell. The slice aliases the output buffer.
func (g GridOutput) Logits(gx, gy int) []float32 {
	i := g.cell(gx, gy) * g.NumClasses
	return g.ClassLogits[i : i+g.NumClasses]
}

// Detection is a decoded region in original-image pixel coordinates.
type Detection struct {
	Box     utils.Box `json:"box"`
	Score   float64   `json:"score"`
	ClassID int       `json:"class_id"`
	Label   string    `json:"label"`
	GridX   int       `json:"grid_x"`
	GridY   int       `json:"grid_y"`
}

// BBox returns the box as an (x1, y1, x2, y2) integer tuple.
func (d Detection) BBox() [4]int { return d.Box.Corners() }
