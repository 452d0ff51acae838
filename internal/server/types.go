// Package server exposes document extraction over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pdf"
	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extractor is the part of the pipeline the server needs.
type Extractor interface {
	ExtractBytes(ctx context.Context, data []byte) *pipeline.Result
	ExtractPDF(ctx context.Context, filename string, opts pdf.Options) (*pipeline.PDFResult, error)
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline       Extractor
	corsOrigin     string
	maxUploadMB    int64
	timeout        time.Duration
	overlayEnabled bool
	rateLimiter    *RateLimiter
	wsIdle         time.Duration
}

// RateLimitConfig bounds per-client traffic. Zero values disable a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// Config holds server configuration.
type Config struct {
	Host           string          `mapstructure:"host" yaml:"host" json:"host"`
	Port           int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin     string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB    int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec     int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownSec    int             `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	OverlayEnabled bool            `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		CORSOrigin:     "*",
		MaxUploadMB:    50,
		TimeoutSec:     120,
		ShutdownSec:    10,
		OverlayEnabled: true,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
		},
	}
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is returned for requests rejected before extraction.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewServer wraps an already built pipeline.
func NewServer(config Config, p Extractor) *Server {
	s := &Server{
		pipeline:       p,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		timeout:        time.Duration(config.TimeoutSec) * time.Second,
		overlayEnabled: config.OverlayEnabled,
		wsIdle:         wsReadTimeout,
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = DefaultConfig().MaxUploadMB
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/info", s.corsMiddleware(s.infoHandler))
	mux.HandleFunc("/extract", s.corsMiddleware(s.rateLimitMiddleware(s.extractHandler)))
	mux.HandleFunc("/extract/pdf", s.corsMiddleware(s.rateLimitMiddleware(s.extractPDFHandler)))
	mux.HandleFunc("/ws", s.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
