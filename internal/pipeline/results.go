package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ToJSON serializes a single Result to pretty JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText returns the aggregate text, or the error line when extraction failed.
func ToPlainText(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	if res.Error != "" && res.Text == "" {
		return "error: " + res.Error, nil
	}
	return res.Text, nil
}

// ToCSV exports one row per region with a header.
func ToCSV(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"index", "label", "score", "x1", "y1", "x2", "y2", "ocr_confidence", "text"})
	for i, r := range res.Regions {
		conf := ""
		if r.OCRConfidence != nil {
			conf = fmt.Sprintf("%.3f", *r.OCRConfidence)
		}
		_ = w.Write([]string{
			strconv.Itoa(i),
			r.Label,
			fmt.Sprintf("%.3f", r.Score),
			strconv.Itoa(r.BBox[0]),
			strconv.Itoa(r.BBox[1]),
			strconv.Itoa(r.BBox[2]),
			strconv.Itoa(r.BBox[3]),
			conf,
			r.Text,
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// PDFToPlainText renders a PDF result page by page.
func PDFToPlainText(res *PDFResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nTotal Pages: %d\n", res.Filename, res.TotalPages)
	for _, page := range res.Pages {
		fmt.Fprintf(&b, "\nPage %d:\n", page.PageNumber)
		if page.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", page.Error)
		}
		if page.TextLayer != "" {
			b.WriteString(page.TextLayer)
			b.WriteString("\n")
		}
		for _, img := range page.Images {
			text, _ := ToPlainText(img)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// ValidateResult performs simple consistency checks on a successful result.
func ValidateResult(res *Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for i, r := range res.Regions {
		x1, y1, x2, y2 := r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]
		if x1 < 0 || y1 < 0 || x2 > res.Width || y2 > res.Height {
			return fmt.Errorf("region %d outside image bounds", i)
		}
		if x2 < x1 || y2 < y1 {
			return fmt.Errorf("region %d has negative size", i)
		}
		if r.Score < 0 || r.Score > 1 {
			return fmt.Errorf("region %d score out of range", i)
		}
		if c := r.OCRConfidence; c != nil && (*c < 0 || *c > 1) {
			return fmt.Errorf("region %d ocr confidence out of range", i)
		}
	}
	if res.Fallback && len(res.Regions) != 1 {
		return fmt.Errorf("fallback result must have exactly one region, got %d", len(res.Regions))
	}
	return nil
}
