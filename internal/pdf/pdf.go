// Package pdf turns PDF documents into page images for the extraction pipeline.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/MeKo-Tech/formocr/internal/utils"
)

// PageImages holds the raster images embedded in one PDF page.
type PageImages struct {
	Page   int
	Images []image.Image
}

// ErrInvalidPageRange is returned for malformed page range expressions.
var ErrInvalidPageRange = errors.New("invalid page range")

// Options controls PDF image extraction.
type Options struct {
	PageRange string
	Password  string
}

// ExtractPages extracts the embedded images of every selected page, ordered by page number.
// Pages without images are omitted.
func ExtractPages(filename string, opts Options) ([]PageImages, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}
	pageNumbers, err := ParsePageRange(opts.PageRange)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPageRange, opts.PageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "formocr-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, configuration(opts.Password)); err != nil {
		if IsPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	pages, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return pages, nil
}

func configuration(password string) *model.Configuration {
	if password == "" {
		return nil
	}
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

// collectExtractedImages groups pdfcpu output files (page_<n>_... .ext) by page.
func collectExtractedImages(dir string) ([]PageImages, error) {
	byPage := make(map[int][]image.Image)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		pageNum, err := parsePageFromFilename(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: files we just extracted
		if err != nil {
			continue
		}
		img, _, err := utils.DecodeImage(data)
		if err != nil {
			continue
		}
		byPage[pageNum] = append(byPage[pageNum], img)
	}

	pages := make([]PageImages, 0, len(byPage))
	for n, imgs := range byPage {
		pages = append(pages, PageImages{Page: n, Images: imgs})
	}
	slices.SortFunc(pages, func(a, b PageImages) int { return a.Page - b.Page })
	return pages, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted filename.
func parsePageFromFilename(filename string) (int, error) {
	// e.g. page_1_image_1.png or sample_1_Im0.png depending on the pdfcpu version
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	if parts[0] == "page" {
		return strconv.Atoi(parts[1])
	}
	for i := len(parts) - 2; i >= 0; i-- {
		if n, err := strconv.Atoi(parts[i]); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("no page number in filename")
}

// ParsePageRange parses "1-5", "1,3,5" or a mix. Empty means all pages.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	slices.Sort(pages)
	return slices.Compact(pages), nil
}

func parseRangeToken(part string) ([]int, error) {
	if from, to, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", from)
		}
		end, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", to)
		}
		if start < 1 || start > end {
			return nil, fmt.Errorf("invalid page range %d-%d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
