package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yolodet/internal/app"
	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/server"
)

// openApp builds the application context. Tests replace it to inject a detector.
var openApp = app.New

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the detection API",
	Long: `Start an HTTP server that provides REST API endpoints for object detection.

The server provides the following endpoints:
  POST /predict/     - Detect objects in an uploaded image
  POST /predict/pdf  - Detect objects in the images of a PDF
  GET  /ws/predict   - WebSocket detection stream
  GET  /health       - Health check endpoint
  GET  /model        - Loaded model and classes
  GET  /config       - Active configuration
  GET  /metrics      - Prometheus metrics

Examples:
  yolodet serve
  yolodet serve --port 8080
  yolodet serve --host 0.0.0.0 --model yolov8s.onnx --translations coco.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		appCtx, err := openApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		srv, err := server.NewServer(serverConfig(cfg), appCtx)
		if err != nil {
			_ = appCtx.Close()
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return runServer(ctx, cfg, srv)
	},
}

// serverConfig maps the configuration file section onto the HTTP server settings.
func serverConfig(cfg *config.Config) server.Config {
	rl := cfg.Server.RateLimit
	return server.Config{
		CORSOrigin:        cfg.Server.CORSOrigin,
		MaxUploadMB:       int64(cfg.Server.MaxUploadMB),
		TimeoutSec:        cfg.Server.TimeoutSec,
		DefaultConfidence: cfg.Server.DefaultConfidence,
		PDFMaxPages:       cfg.Server.PDFMaxPages,
		JPEGQuality:       cfg.Annotation.JPEGQuality,
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     rl.MaxDataPerDay,
		},
	}
}

// runServer serves until ctx is cancelled or the listener fails, then shuts down
// gracefully and releases the model.
func runServer(ctx context.Context, cfg *config.Config, srv *server.Server) error {
	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Rendering and encoding happen after the request timeout has bounded inference.
		WriteTimeout: 2 * timeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting detection server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err, ok := <-serveErr:
		if ok {
			slog.Error("Server error", "error", err)
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return runErr
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Float64("default-confidence", 0.5, "confidence threshold used when a request sends none")
	f.Int("pdf-max-pages", 20, "maximum number of PDF pages processed per request")
	f.String("model", "", "ONNX model file or name inside the models directory")
	f.String("models-dir", "", "directory containing ONNX models")
	f.String("backend", config.BackendONNX, "detection backend: onnx or remote")
	f.String("remote-url", "", "detection endpoint for the remote backend")
	f.String("translations", "", "translation CSV file")
	f.String("font", "", "TrueType font file for labels")
	f.Bool("gpu", false, "enable CUDA acceleration")
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 5000, "maximum requests per day per client")
	f.Int64("max-data-per-day", 1<<30, "maximum data processed per day per client (bytes)")

	commandBindings[serveCmd] = append(modelBindings(),
		flagBinding{"server.host", "host"},
		flagBinding{"server.port", "port"},
		flagBinding{"server.cors_origin", "cors-origin"},
		flagBinding{"server.max_upload_mb", "max-upload-size"},
		flagBinding{"server.timeout_sec", "timeout"},
		flagBinding{"server.shutdown_timeout", "shutdown-timeout"},
		flagBinding{"server.default_confidence", "default-confidence"},
		flagBinding{"server.pdf_max_pages", "pdf-max-pages"},
		flagBinding{"server.rate_limit.enabled", "rate-limit-enabled"},
		flagBinding{"server.rate_limit.requests_per_minute", "requests-per-minute"},
		flagBinding{"server.rate_limit.requests_per_hour", "requests-per-hour"},
		flagBinding{"server.rate_limit.max_requests_per_day", "max-requests-per-day"},
		flagBinding{"server.rate_limit.max_data_per_day", "max-data-per-day"},
	)
}

// modelBindings are the model, translation and font flags shared by serve and annotate.
func modelBindings() []flagBinding {
	return []flagBinding{
		{"model.path", "model"},
		{"model.models_dir", "models-dir"},
		{"model.backend", "backend"},
		{"model.remote_url", "remote-url"},
		{"translation.file", "translations"},
		{"font.file", "font"},
		{"gpu.enabled", "gpu"},
	}
}
