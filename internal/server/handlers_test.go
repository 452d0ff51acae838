package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/pdf"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/MeKo-Tech/formocr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthHandler(t *testing.T) {
	server := newTestServer(&stubPipeline{})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()
			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_InfoHandler(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(&stubPipeline{}).infoHandler(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "models", info["models_dir"])

	w = httptest.NewRecorder()
	(&Server{}).infoHandler(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ExtractJSON(t *testing.T) {
	server := newTestServer(&stubPipeline{})
	w := httptest.NewRecorder()
	server.extractHandler(w, multipartRequest(t, "/extract", formPNG(t), "form.png", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Text    string `json:"text"`
		Error   string `json:"error"`
		Regions []struct {
			BBox  [4]int  `json:"bbox"`
			Score float64 `json:"score"`
			Label string  `json:"label"`
			Text  string  `json:"text"`
		} `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Jane Doe", body.Text)
	assert.Empty(t, body.Error)
	require.Len(t, body.Regions, 1)
	assert.Equal(t, [4]int{100, 100, 500, 160}, body.Regions[0].BBox)
	assert.Equal(t, "answer", body.Regions[0].Label)
}

func TestServer_ExtractFormats(t *testing.T) {
	server := newTestServer(&stubPipeline{})

	t.Run("text", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.extractHandler(w, multipartRequest(t, "/extract?format=text", formPNG(t), "form.png", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Jane Doe", w.Body.String())
	})

	t.Run("csv", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.extractHandler(w, multipartRequest(t, "/extract", formPNG(t), "form.png", map[string]string{"format": "csv"}))
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "0,answer,0.950,100,100,500,160,0.900,Jane Doe", lines[1])
	})

	t.Run("overlay", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.extractHandler(w, multipartRequest(t, "/extract?format=overlay", formPNG(t), "form.png", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 1000, img.Bounds().Dx())
	})

	t.Run("overlay disabled", func(t *testing.T) {
		disabled := newTestServer(&stubPipeline{}, func(c *Config) { c.OverlayEnabled = false })
		w := httptest.NewRecorder()
		disabled.extractHandler(w, multipartRequest(t, "/extract?format=overlay", formPNG(t), "form.png", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestServer_ExtractRejectsBadRequests(t *testing.T) {
	server := newTestServer(&stubPipeline{}, func(c *Config) { c.MaxUploadMB = 1 })

	t.Run("wrong method", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.extractHandler(w, httptest.NewRequest(http.MethodGet, "/extract", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("no file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w := httptest.NewRecorder()
		server.extractHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.extractHandler(w, multipartRequest(t, "/extract", make([]byte, 2*1024*1024), "big.png", nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("no pipeline", func(t *testing.T) {
		w := httptest.NewRecorder()
		(&Server{maxUploadMB: 1}).extractHandler(w, multipartRequest(t, "/extract", formPNG(t), "form.png", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestServer_ExtractFailureCarriesResult(t *testing.T) {
	failed := pipeline.NewFailedResult(fmt.Errorf("%w (threshold=0.7)", pipeline.ErrNoDetections))
	server := newTestServer(&stubPipeline{result: failed})

	w := httptest.NewRecorder()
	server.extractHandler(w, multipartRequest(t, "/extract", formPNG(t), "form.png", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CNN detection returned no regions (threshold=0.7)", body["error"])
	assert.Equal(t, "", body["text"])
	assert.Equal(t, []interface{}{}, body["regions"])
}

func TestServer_ExtractTimeout(t *testing.T) {
	server := newTestServer(&stubPipeline{block: true})
	server.timeout = 50 * time.Millisecond

	w := httptest.NewRecorder()
	server.extractHandler(w, multipartRequest(t, "/extract", formPNG(t), "form.png", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OCR timed out after 50ms", body["error"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		res  *pipeline.Result
		want int
	}{
		{"ok", formResult(), http.StatusOK},
		{"timeout", pipeline.NewFailedResult(&pipeline.TimeoutError{Timeout: time.Second}), http.StatusGatewayTimeout},
		{"model", pipeline.NewFailedResult(fmt.Errorf("%w at x.onnx", detector.ErrModelUnavailable)), http.StatusServiceUnavailable},
		{"empty", pipeline.NewFailedResult(pipeline.ErrEmptyExtraction), http.StatusUnprocessableEntity},
		{"decode", pipeline.NewFailedResult(&utils.ImageProcessingError{Operation: "decode", Err: errors.New("bad")}), http.StatusBadRequest},
		{"other", pipeline.NewFailedResult(errors.New("internal error: boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.res))
		})
	}
}

func TestServer_ExtractPDF(t *testing.T) {
	stub := &stubPipeline{}
	server := newTestServer(stub)

	w := httptest.NewRecorder()
	req := multipartRequest(t, "/extract/pdf", []byte("%PDF-1.4"), "scan.pdf", map[string]string{"pages": "1-2", "password": "secret"})
	server.extractPDFHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res pipeline.PDFResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "scan.pdf", res.Filename)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "Jane Doe", res.Pages[0].Images[0].Text)
	assert.Equal(t, pdf.Options{PageRange: "1-2", Password: "secret"}, stub.pdfOpts)

	w = httptest.NewRecorder()
	server.extractPDFHandler(w, multipartRequest(t, "/extract/pdf?format=text", []byte("%PDF-1.4"), "scan.pdf", nil))
	assert.Contains(t, w.Body.String(), "File: scan.pdf")
	assert.Contains(t, w.Body.String(), "Page 1:\nJane Doe\n")
}

func TestServer_ExtractPDFErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: wrong password", pdf.ErrEncrypted), http.StatusUnauthorized},
		{fmt.Errorf("%w \"x\": bad", pdf.ErrInvalidPageRange), http.StatusBadRequest},
		{errors.New("broken"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		server := newTestServer(&stubPipeline{pdfErr: tt.err})
		w := httptest.NewRecorder()
		server.extractPDFHandler(w, multipartRequest(t, "/extract/pdf", []byte("%PDF"), "a.pdf", nil))
		assert.Equal(t, tt.want, w.Code, tt.err.Error())

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Contains(t, body.Error, "PDF extraction failed")
	}
}

func TestServer_Routes(t *testing.T) {
	stub := &stubPipeline{}
	ts := httptest.NewServer(newTestServer(stub).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "formocr_http_requests_total")
}

func TestServer_Close(t *testing.T) {
	stub := &stubPipeline{}
	require.NoError(t, newTestServer(stub).Close())
	assert.True(t, stub.closed)
	assert.NoError(t, (&Server{}).Close())
}
