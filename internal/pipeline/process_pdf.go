package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pdf"
)

// PDFResult holds per-page extraction results for a PDF document.
type PDFResult struct {
	Filename   string          `json:"filename"`
	TotalPages int             `json:"total_pages"`
	Pages      []PDFPageResult `json:"pages"`
	Processing struct {
		ExtractionNs int64 `json:"extraction_ns"`
		TotalNs      int64 `json:"total_ns"`
	} `json:"processing"`
}

// PDFPageResult holds the results for the raster images of one page.
type PDFPageResult struct {
	PageNumber int       `json:"page_number"`
	Images     []*Result `json:"images"`
	// TextLayer is the embedded text of a page that has no raster images.
	TextLayer string `json:"text_layer,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrNoPageImages is reported for pages without embedded raster images.
var ErrNoPageImages = errors.New("no raster images on page")

// ExtractPDF runs the extraction on every embedded page image of a PDF.
func (p *Pipeline) ExtractPDF(ctx context.Context, filename string, opts pdf.Options) (*PDFResult, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}
	totalStart := time.Now()

	path, cleanup, err := pdf.Decrypt(filename, opts.Password)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	extractStart := time.Now()
	pages, err := pdf.ExtractPages(path, pdf.Options{PageRange: opts.PageRange})
	if err != nil {
		return nil, err
	}
	extractNs := time.Since(extractStart).Nanoseconds()

	res := &PDFResult{Filename: filename}
	byPage := make(map[int]pdf.PageImages, len(pages))
	for _, pg := range pages {
		byPage[pg.Page] = pg
	}

	selected, err := selectedPages(path, opts.PageRange, pages)
	if err != nil {
		return nil, err
	}
	missing := make([]int, 0)
	for _, n := range selected {
		if _, ok := byPage[n]; !ok {
			missing = append(missing, n)
		}
	}
	layers := map[int]string{}
	if len(missing) > 0 {
		if layers, err = pdf.TextLayer(path, missing); err != nil {
			slog.Warn("could not read PDF text layer", "file", filename, "error", err)
			layers = map[int]string{}
		}
	}

	for _, n := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pg, ok := byPage[n]
		if !ok {
			res.Pages = append(res.Pages, PDFPageResult{
				PageNumber: n,
				Images:     []*Result{},
				TextLayer:  layers[n],
				Error:      ErrNoPageImages.Error(),
			})
			continue
		}
		page := PDFPageResult{PageNumber: n, Images: make([]*Result, 0, len(pg.Images))}
		for _, img := range pg.Images {
			page.Images = append(page.Images, p.ExtractImage(ctx, img))
		}
		res.Pages = append(res.Pages, page)
	}

	res.TotalPages = len(res.Pages)
	res.Processing.ExtractionNs = extractNs
	res.Processing.TotalNs = time.Since(totalStart).Nanoseconds()
	return res, nil
}

// selectedPages resolves the page range against the document's page count.
func selectedPages(path, pageRange string, found []pdf.PageImages) ([]int, error) {
	wanted, err := pdf.ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", pdf.ErrInvalidPageRange, pageRange, err)
	}
	count, err := pdf.PageCount(path)
	if err != nil {
		// fall back to the pages that produced images
		slog.Debug("page count unavailable", "error", err)
		out := make([]int, 0, len(found))
		for _, pg := range found {
			out = append(out, pg.Page)
		}
		return out, nil
	}
	if len(wanted) == 0 {
		out := make([]int, 0, count)
		for i := 1; i <= count; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	out := make([]int, 0, len(wanted))
	for _, n := range wanted {
		if n <= count {
			out = append(out, n)
		}
	}
	return out, nil
}
