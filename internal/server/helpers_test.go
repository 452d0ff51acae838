package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pdf"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/MeKo-Tech/formocr/internal/testutil"
	"github.com/MeKo-Tech/formocr/internal/utils"
	"github.com/stretchr/testify/require"
)

// stubPipeline is an Extractor returning canned results.
type stubPipeline struct {
	mu        sync.Mutex
	result    *pipeline.Result
	block     bool
	delay     time.Duration
	pdfResult *pipeline.PDFResult
	pdfErr    error
	pdfOpts   pdf.Options
	closed    bool
}

func (s *stubPipeline) ExtractBytes(ctx context.Context, data []byte) *pipeline.Result {
	if s.block {
		<-ctx.Done()
		return pipeline.NewFailedResult(ctx.Err())
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return pipeline.NewFailedResult(ctx.Err())
		}
	}
	if s.result != nil {
		return s.result.Clone()
	}
	return formResult()
}

func (s *stubPipeline) ExtractPDF(_ context.Context, filename string, opts pdf.Options) (*pipeline.PDFResult, error) {
	s.mu.Lock()
	s.pdfOpts = opts
	s.mu.Unlock()
	if s.pdfErr != nil {
		return nil, s.pdfErr
	}
	if s.pdfResult != nil {
		return s.pdfResult, nil
	}
	res := &pipeline.PDFResult{Filename: filename, TotalPages: 1}
	res.Pages = []pipeline.PDFPageResult{{PageNumber: 1, Images: []*pipeline.Result{formResult()}}}
	return res, nil
}

func (s *stubPipeline) Info() map[string]interface{} {
	return map[string]interface{}{"models_dir": "models", "ocr": map[string]interface{}{"backend": "doctr"}}
}

func (s *stubPipeline) Close() error {
	s.closed = true
	return nil
}

func formResult() *pipeline.Result {
	conf := 0.9
	return &pipeline.Result{
		Text: "Jane Doe",
		Regions: []pipeline.RegionResult{
			{BBox: [4]int{100, 100, 500, 160}, Score: 0.95, Label: "answer", Text: "Jane Doe", OCRConfidence: &conf},
		},
		Width:  1000,
		Height: 1000,
	}
}

func newTestServer(p Extractor, mutate ...func(*Config)) *Server {
	cfg := DefaultConfig()
	cfg.TimeoutSec = 5
	for _, m := range mutate {
		m(&cfg)
	}
	return NewServer(cfg, p)
}

func formPNG(t *testing.T) []byte {
	t.Helper()
	data, err := utils.EncodePNG(testutil.GenerateFormImage(testutil.DefaultFormConfig()))
	require.NoError(t, err)
	return data
}

// multipartRequest builds a POST with the upload in the "file" field.
func multipartRequest(t *testing.T, target string, data []byte, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
