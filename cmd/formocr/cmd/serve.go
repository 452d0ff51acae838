package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP extraction API",
	Long: `Start an HTTP server exposing the extraction pipeline.

The server provides the following endpoints:
  POST /extract      - Extract a multipart image upload (field "file")
  POST /extract/pdf  - Extract the page images of a PDF upload
  GET  /ws           - WebSocket extraction
  GET  /health       - Health check endpoint
  GET  /info         - Pipeline and model information
  GET  /metrics      - Prometheus metrics

Examples:
  formocr serve
  formocr serve --port 8080
  formocr serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	Args: cobra.NoArgs,
	RunE: runServeCommand,
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	sc := cfg.ToServerConfig()

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	ocrServer := server.NewServer(sc, p)
	defer func() {
		slog.Info("Cleaning up server resources")
		if err := ocrServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	requestTimeout := time.Duration(sc.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Handler:           ocrServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		// The handler answers 504 at the request timeout; leave room to write it
		WriteTimeout: requestTimeout + 10*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting extraction server", "host", sc.Host, "port", sc.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			serveErr <- err
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdownTimeout := time.Duration(sc.ShutdownSec) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addDetectorFlags(serveCmd)

	fs := serveCmd.Flags()
	fs.StringP("host", "H", "localhost", "server host")
	fs.IntP("port", "p", 8080, "server port")
	fs.String("cors-origin", "*", "CORS allowed origins")
	fs.Int64("max-upload-size", 50, "maximum upload size in MB")
	fs.Int("timeout", 120, "per-request extraction timeout in seconds")
	fs.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	fs.Bool("overlay-enable", true, "enable overlay image responses")
	fs.Bool("rate-limit-enabled", false, "enable rate limiting")
	fs.Int("requests-per-minute", 60, "maximum requests per minute per client")
	fs.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	fs.Int("max-requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	fs.Int64("max-data-per-day", 0, "maximum uploaded bytes per day per client (0 = unlimited)")

	bindConfigFlag(fs, "host", "server.host")
	bindConfigFlag(fs, "port", "server.port")
	bindConfigFlag(fs, "cors-origin", "server.cors_origin")
	bindConfigFlag(fs, "max-upload-size", "server.max_upload_mb")
	bindConfigFlag(fs, "timeout", "server.timeout_sec")
	bindConfigFlag(fs, "shutdown-timeout", "server.shutdown_timeout_sec")
	bindConfigFlag(fs, "overlay-enable", "server.overlay_enabled")
	bindConfigFlag(fs, "rate-limit-enabled", "server.rate_limit.enabled")
	bindConfigFlag(fs, "requests-per-minute", "server.rate_limit.requests_per_minute")
	bindConfigFlag(fs, "requests-per-hour", "server.rate_limit.requests_per_hour")
	bindConfigFlag(fs, "max-requests-per-day", "server.rate_limit.max_requests_per_day")
	bindConfigFlag(fs, "max-data-per-day", "server.rate_limit.max_data_per_day")
}
