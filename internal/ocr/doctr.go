package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultDocTREndpoint is where a local docTR service is expected.
const DefaultDocTREndpoint = "http://127.0.0.1:8081/ocr"

const maxErrorBody = 1024

// DocTREngine posts images to a docTR-compatible HTTP service. The service
// answers each PNG body with the JSON of docTR's Document.export().
type DocTREngine struct {
	endpoint string
	httpc    *http.Client
}

// NewDocTREngine creates an engine for endpoint. A zero timeout means 60s.
func NewDocTREngine(endpoint string, timeout time.Duration) (*DocTREngine, error) {
	if endpoint == "" {
		endpoint = DefaultDocTREndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, NewOCRError("NewDocTREngine", ErrOCRFailed, "endpoint must be an http(s) URL: "+endpoint)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DocTREngine{endpoint: endpoint, httpc: &http.Client{Timeout: timeout}}, nil
}

// Recognize sends one request per image and concatenates the returned pages.
func (d *DocTREngine) Recognize(ctx context.Context, images [][]byte) (*Document, error) {
	doc := &Document{}
	for i, img := range images {
		part, err := d.recognizeOne(ctx, img)
		if err != nil {
			return nil, WrapOCRError("DocTRRecognize", err, fmt.Sprintf("image %d", i))
		}
		doc.Pages = append(doc.Pages, part.Pages...)
	}
	return doc, nil
}

func (d *DocTREngine) recognizeOne(ctx context.Context, img []byte) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: docTR %d: %s", ErrOCRFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: bad docTR JSON: %w", ErrOCRFailed, err)
	}
	if doc.Pages == nil {
		return nil, errors.Join(ErrOCRFailed, errors.New("docTR response has no pages"))
	}
	return &doc, nil
}

// Close releases idle connections.
func (d *DocTREngine) Close() error {
	d.httpc.CloseIdleConnections()
	return nil
}
