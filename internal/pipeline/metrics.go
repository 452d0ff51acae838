package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formocr_documents_total",
			Help: "Documents processed by outcome",
		},
		[]string{"status"}, // ok, model_unavailable, no_detections, empty, error, cached
	)

	detectionsPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formocr_detections_per_document",
			Help:    "Regions kept after suppression",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 50},
		},
	)

	fallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formocr_full_document_fallbacks_total",
			Help: "Documents read as a single full-page region",
		},
	)

	regionOCRFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formocr_region_ocr_failures_total",
			Help: "Regions whose OCR call failed",
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formocr_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"}, // detection, ocr, total
	)
)

func statusOf(res *Result) string {
	switch {
	case res.Error == "":
		if res.Processing.Cached {
			return "cached"
		}
		return "ok"
	case errorIs(res, ErrModelUnavailable):
		return "model_unavailable"
	case errorIs(res, ErrNoDetections):
		return "no_detections"
	case errorIs(res, ErrEmptyExtraction):
		return "empty"
	default:
		return "error"
	}
}

func recordMetrics(res *Result) {
	documentsTotal.WithLabelValues(statusOf(res)).Inc()
	if res.Processing.Cached {
		return
	}
	p := res.Processing
	if p.DetectionNs > 0 {
		stageDuration.WithLabelValues("detection").Observe(float64(p.DetectionNs) / 1e9)
		detectionsPerDocument.Observe(float64(len(res.Regions)))
	}
	if p.OCRNs > 0 {
		stageDuration.WithLabelValues("ocr").Observe(float64(p.OCRNs) / 1e9)
	}
	stageDuration.WithLabelValues("total").Observe(float64(p.TotalNs) / 1e9)
	if res.Fallback {
		fallbacksTotal.Inc()
	}
	if p.OCRFailures > 0 {
		regionOCRFailures.Add(float64(p.OCRFailures))
	}
}
