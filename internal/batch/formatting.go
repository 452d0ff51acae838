package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/MeKo-Tech/formocr/internal/utils"
)

// FormatResults renders the batch in the given format. Unknown formats fall back to text.
func FormatResults(res *Result, format string) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(res)
	case FormatCSV:
		return formatCSV(res)
	default:
		return formatText(res)
	}
}

type summary struct {
	Documents  int   `json:"documents"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Workers    int   `json:"workers"`
	DurationNs int64 `json:"duration_ns"`
}

func formatJSON(res *Result) (string, error) {
	out := struct {
		Documents []Item  `json:"documents"`
		Summary   summary `json:"summary"`
	}{
		Documents: res.Items,
		Summary: summary{
			Documents:  len(res.Items),
			Succeeded:  res.Succeeded(),
			Failed:     res.Failed(),
			Workers:    res.Workers,
			DurationNs: res.Duration.Nanoseconds(),
		},
	}
	if out.Documents == nil {
		out.Documents = []Item{}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	return string(b), err
}

func formatCSV(res *Result) (string, error) {
	var output strings.Builder
	w := csv.NewWriter(&output)
	if err := w.Write([]string{
		"file", "region_index", "label", "score", "x1", "y1", "x2", "y2", "ocr_confidence", "text", "error",
	}); err != nil {
		return "", err
	}

	for _, it := range res.Items {
		if it.Result == nil {
			continue
		}
		if len(it.Result.Regions) == 0 {
			// one row per document so failures stay visible
			if err := w.Write([]string{it.File, "", "", "", "", "", "", "", "", "", it.Result.Error}); err != nil {
				return "", err
			}
			continue
		}
		for j, r := range it.Result.Regions {
			conf := ""
			if r.OCRConfidence != nil {
				conf = fmt.Sprintf("%.3f", *r.OCRConfidence)
			}
			row := []string{
				it.File,
				strconv.Itoa(j),
				r.Label,
				fmt.Sprintf("%.3f", r.Score),
				strconv.Itoa(r.BBox[0]),
				strconv.Itoa(r.BBox[1]),
				strconv.Itoa(r.BBox[2]),
				strconv.Itoa(r.BBox[3]),
				conf,
				r.Text,
				it.Result.Error,
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return output.String(), w.Error()
}

func formatText(res *Result) (string, error) {
	var output strings.Builder
	for i, it := range res.Items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", it.File)
		if it.Result == nil {
			continue
		}
		text, err := pipeline.ToPlainText(it.Result)
		if err != nil {
			return "", err
		}
		output.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			output.WriteString("\n")
		}
	}
	return output.String(), nil
}

// SaveResults writes the formatted batch to cfg.OutputFile, or to w when no file is set.
func SaveResults(res *Result, cfg Config, w io.Writer) error {
	out, err := FormatResults(res, cfg.Format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if cfg.OutputFile == "" {
		_, err = io.WriteString(w, out)
		return err
	}
	if err := os.WriteFile(cfg.OutputFile, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// PrintStats writes a short summary of the run.
func PrintStats(w io.Writer, res *Result) {
	n := len(res.Items)
	_, _ = fmt.Fprintf(w, "Processed %d document(s) with %d worker(s) in %v\n", n, res.Workers, res.Duration)
	_, _ = fmt.Fprintf(w, "  succeeded: %d\n  failed:    %d\n", res.Succeeded(), res.Failed())
	if n > 0 {
		avg := res.Duration / time.Duration(n)
		_, _ = fmt.Fprintf(w, "  average:   %v per document\n", avg)
	}
}

// WriteOverlays renders the detected regions of every successful document into dir.
func WriteOverlays(res *Result, dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create overlay dir: %w", err)
	}
	for _, it := range res.Items {
		if it.Result == nil || len(it.Result.Regions) == 0 {
			continue
		}
		img, _, _, err := utils.LoadImage(it.File)
		if err != nil {
			return err
		}
		overlay := pipeline.RenderOverlay(img, it.Result.Detections())
		base := strings.TrimSuffix(filepath.Base(it.File), filepath.Ext(it.File))
		data, err := utils.EncodePNG(overlay)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, base+"_overlay.png"), data, 0o600); err != nil {
			return fmt.Errorf("failed to write overlay for %s: %w", it.File, err)
		}
	}
	return nil
}
