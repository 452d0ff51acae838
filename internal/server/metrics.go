package server

import (
	"time"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formocr_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formocr_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Extraction request metrics
	ocrRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formocr_extract_requests_total",
			Help: "Total number of extraction requests",
		},
		[]string{"type", "status"}, // type: image, pdf, websocket
	)

	ocrProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formocr_extract_duration_seconds",
			Help:    "Extraction duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"type"},
	)

	ocrTextLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formocr_extract_text_length",
			Help:    "Length of extracted text",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"type"},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formocr_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formocr_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formocr_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formocr_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

func recordExtraction(kind string, res *pipeline.Result, d time.Duration) {
	status := "success"
	if !res.OK() {
		status = "error"
	}
	ocrRequestsTotal.WithLabelValues(kind, status).Inc()
	ocrProcessingDuration.WithLabelValues(kind).Observe(d.Seconds())
	ocrTextLength.WithLabelValues(kind).Observe(float64(len(res.Text)))
}
