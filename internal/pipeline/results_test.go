package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/formocr/internal/pdf"
)

func conf(v float64) *float64 { return &v }

func sampleResult() *Result {
	return &Result{
		Text: "Name:\nJane",
		Regions: []RegionResult{
			{BBox: [4]int{10, 10, 100, 40}, Score: 0.95, Label: "question", Text: "Name:", OCRConfidence: conf(0.9)},
			{BBox: [4]int{10, 50, 100, 80}, Score: 0.9, Label: "answer", Text: "", OCRConfidence: nil},
			{BBox: [4]int{120, 50, 200, 80}, Score: 0.85, Label: "answer", Text: "Jane, \"J\"", OCRConfidence: conf(0.5)},
		},
		Width:  300,
		Height: 200,
	}
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, "Name:\nJane", decoded["text"])
	assert.NotContains(t, decoded, "error")

	regions := decoded["regions"].([]interface{})
	require.Len(t, regions, 3)
	second := regions[1].(map[string]interface{})
	assert.Contains(t, second, "ocr_confidence")
	assert.Nil(t, second["ocr_confidence"])
	assert.Equal(t, []interface{}{10.0, 50.0, 100.0, 80.0}, second["bbox"])

	_, err = ToJSON(nil)
	require.Error(t, err)
}

func TestToPlainText(t *testing.T) {
	s, err := ToPlainText(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "Name:\nJane", s)

	failed := (&Result{}).fail(ErrEmptyExtraction)
	s, err = ToPlainText(failed)
	require.NoError(t, err)
	assert.Equal(t, "error: No text extracted from detected regions", s)
}

func TestToCSV(t *testing.T) {
	s, err := ToCSV(sampleResult())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "index,label,score,x1,y1,x2,y2,ocr_confidence,text", lines[0])
	assert.Equal(t, "0,question,0.950,10,10,100,40,0.900,Name:", lines[1])
	assert.Equal(t, "1,answer,0.900,10,50,100,80,,", lines[2])
	assert.Equal(t, `2,answer,0.850,120,50,200,80,0.500,"Jane, ""J"""`, lines[3])
}

func TestValidateResult(t *testing.T) {
	require.NoError(t, ValidateResult(sampleResult()))

	r := sampleResult()
	r.Regions[0].BBox = [4]int{0, 0, 400, 10}
	require.Error(t, ValidateResult(r))

	r = sampleResult()
	r.Regions[2].OCRConfidence = conf(1.5)
	require.Error(t, ValidateResult(r))

	r = sampleResult()
	r.Fallback = true
	require.Error(t, ValidateResult(r))

	require.Error(t, ValidateResult(&Result{}))
	require.Error(t, ValidateResult(nil))
}

func TestJoinRegionText(t *testing.T) {
	assert.Equal(t, "a\nb", joinRegionText([]RegionResult{{Text: "a"}, {Text: ""}, {Text: "b"}}))
	assert.Equal(t, "", joinRegionText([]RegionResult{{Text: ""}, {Text: " "}}))
	assert.Equal(t, "x", joinRegionText([]RegionResult{{Text: " x"}, {Text: "\n"}}))
	assert.Equal(t, "", joinRegionText(nil))
}

func TestResultClone(t *testing.T) {
	orig := sampleResult()
	cp := orig.Clone()
	*cp.Regions[0].OCRConfidence = 0.1
	cp.Regions[1].Text = "changed"
	assert.InDelta(t, 0.9, *orig.Regions[0].OCRConfidence, 1e-12)
	assert.Equal(t, "", orig.Regions[1].Text)
	assert.Nil(t, (*Result)(nil).Clone())
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, (*Result)(nil).Err())
	assert.NoError(t, sampleResult().Err())
	assert.True(t, sampleResult().OK())

	r := (&Result{}).fail(noDetections(0.7))
	assert.Equal(t, "CNN detection returned no regions (threshold=0.7)", r.Error)
	assert.ErrorIs(t, r.Err(), ErrNoDetections)

	decoded := &Result{Error: "something broke"}
	assert.EqualError(t, decoded.Err(), "something broke")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "ok", statusOf(&Result{}))
	assert.Equal(t, "cached", statusOf(&Result{Processing: Processing{Cached: true}}))
	assert.Equal(t, "no_detections", statusOf((&Result{}).fail(noDetections(0.7))))
	assert.Equal(t, "empty", statusOf((&Result{}).fail(ErrEmptyExtraction)))
	assert.Equal(t, "error", statusOf((&Result{}).fail(errors.New("x"))))
}

func TestDetectionsFromResult(t *testing.T) {
	dets := sampleResult().Detections()
	require.Len(t, dets, 3)
	assert.Equal(t, [4]int{120, 50, 200, 80}, dets[2].BBox())
	assert.Equal(t, "answer", dets[2].Label)
}

func TestSelectedPagesWithoutPageCount(t *testing.T) {
	found := []pdf.PageImages{{Page: 2}, {Page: 5}}
	pages, err := selectedPages("/nonexistent.pdf", "", found)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, pages)

	_, err = selectedPages("/nonexistent.pdf", "x-", found)
	require.Error(t, err)
}

func TestPDFToPlainText(t *testing.T) {
	res := &PDFResult{Filename: "scan.pdf", TotalPages: 2, Pages: []PDFPageResult{
		{PageNumber: 1, Images: []*Result{sampleResult()}},
		{PageNumber: 2, Images: []*Result{}, TextLayer: "typed page", Error: ErrNoPageImages.Error()},
	}}

	out := PDFToPlainText(res)
	assert.Equal(t, "File: scan.pdf\nTotal Pages: 2\n"+
		"\nPage 1:\n"+sampleResult().Text+"\n"+
		"\nPage 2:\n  error: no raster images on page\ntyped page\n", out)
}
