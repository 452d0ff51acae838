package pdf

import (
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// PageCount returns the number of pages in the document.
func PageCount(filename string) (int, error) {
	r, err := pdf.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}
	return r.NumPage(), nil
}

// TextLayer returns the embedded text of each requested page that has any.
// Scanned forms usually have none; callers use it to annotate image-less pages.
func TextLayer(filename string, pages []int) (map[int]string, error) {
	r, err := pdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}
	total := r.NumPage()
	if len(pages) == 0 {
		for i := 1; i <= total; i++ {
			pages = append(pages, i)
		}
	}

	out := make(map[int]string)
	for _, n := range pages {
		if n < 1 || n > total {
			continue
		}
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		if text := pageText(page); text != "" {
			out[n] = text
		}
	}
	return out, nil
}

func pageText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				parts = append(parts, t.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		return strings.Join(lines, "\n")
	}
	plain, err := page.GetPlainText(make(map[string]*pdf.Font))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(plain)
}
