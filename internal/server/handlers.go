package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/formocr/internal/detector"
	"github.com/MeKo-Tech/formocr/internal/pdf"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/MeKo-Tech/formocr/internal/utils"
	"github.com/MeKo-Tech/formocr/internal/version"
)

const (
	formatText    = "text"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// infoHandler reports the pipeline configuration.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, r, "extraction pipeline not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Info())
}

// readUpload reads the multipart "file" field within the upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, r, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, r, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, r, "No file provided", http.StatusBadRequest)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, r, "Failed to read upload", http.StatusInternalServerError)
		return nil, "", false
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, header.Filename, true
}

// requestFormat reads format from the form or the query string.
func requestFormat(r *http.Request) string {
	if f := r.FormValue("format"); f != "" {
		return f
	}
	return r.URL.Query().Get("format")
}

// extractHandler runs the pipeline on one uploaded image.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, r, "extraction pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	res := pipeline.RunWithTimeout(r.Context(), s.timeout, func(ctx context.Context) *pipeline.Result {
		return s.pipeline.ExtractBytes(ctx, data)
	})
	recordExtraction("image", res, time.Since(start))
	slog.Info("extracted document",
		"request_id", requestIDFrom(r), "file", name, "regions", len(res.Regions), "error", res.Error)

	switch requestFormat(r) {
	case formatText:
		text, _ := pipeline.ToPlainText(res)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(statusFor(res))
		_, _ = io.WriteString(w, text)
	case formatCSV:
		out, err := pipeline.ToCSV(res)
		if err != nil {
			s.writeErrorResponse(w, r, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(statusFor(res))
		_, _ = io.WriteString(w, out)
	case formatOverlay:
		s.handleOverlayOutput(w, r, data, res)
	default:
		writeJSON(w, statusFor(res), res)
	}
}

// handleOverlayOutput renders the detected regions onto the upload as PNG.
func (s *Server) handleOverlayOutput(w http.ResponseWriter, r *http.Request, data []byte, res *pipeline.Result) {
	if !s.overlayEnabled {
		http.Error(w, "overlay output disabled", http.StatusForbidden)
		return
	}
	if !res.OK() {
		writeJSON(w, statusFor(res), res)
		return
	}
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		s.writeErrorResponse(w, r, "overlay failed", http.StatusInternalServerError)
		return
	}
	ov := pipeline.RenderOverlay(img, res.Detections())
	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, ov)
}

// extractPDFHandler runs the pipeline on every page image of an uploaded PDF.
func (s *Server) extractPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, r, "extraction pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	tmp, err := os.CreateTemp("", "formocr-upload-*.pdf")
	if err != nil {
		s.writeErrorResponse(w, r, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		s.writeErrorResponse(w, r, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	_ = tmp.Close()

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.pipeline.ExtractPDF(ctx, tmp.Name(), pdf.Options{
		PageRange: r.FormValue("pages"),
		Password:  r.FormValue("password"),
	})
	if err != nil {
		ocrRequestsTotal.WithLabelValues("pdf", "error").Inc()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pdf.ErrEncrypted):
			status = http.StatusUnauthorized
		case errors.Is(err, pdf.ErrInvalidPageRange):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.writeErrorResponse(w, r, fmt.Sprintf("PDF extraction failed: %v", err), status)
		return
	}
	res.Filename = filepath.Base(name)
	ocrRequestsTotal.WithLabelValues("pdf", "success").Inc()
	ocrProcessingDuration.WithLabelValues("pdf").Observe(time.Since(start).Seconds())

	if requestFormat(r) == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, pipeline.PDFToPlainText(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// pdfText renders a PDF result page by page.
// statusFor maps an extraction result to an HTTP status. The body always carries the result.
func statusFor(res *pipeline.Result) int {
	err := res.Err()
	var te *pipeline.TimeoutError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.Is(err, detector.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrNoDetections), errors.Is(err, pipeline.ErrEmptyExtraction):
		return http.StatusUnprocessableEntity
	case isDecodeError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isDecodeError(err error) bool {
	var ipe *utils.ImageProcessingError
	return errors.As(err, &ipe) && ipe.Operation == "decode"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message, RequestID: requestIDFrom(r)})
}
