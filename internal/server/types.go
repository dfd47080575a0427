package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/yolodet/internal/app"
	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app               *app.AppContext
	corsOrigin        string
	maxUploadMB       int64
	timeoutSec        int
	defaultConfidence float64
	pdfMaxPages       int
	jpegQuality       int
	rateLimiter       *RateLimiter
	wsReadTimeout     time.Duration
}

// Config holds server configuration.
type Config struct {
	CORSOrigin        string
	MaxUploadMB       int64
	TimeoutSec        int
	DefaultConfidence float64
	PDFMaxPages       int
	JPEGQuality       int
	RateLimit         RateLimitConfig
}

// Response types for API endpoints.
type RootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status             string `json:"status"`
	CurrentModel       string `json:"current_model"`
	TranslateFile      string `json:"translate_file"`
	TranslationsLoaded int    `json:"translations_loaded"`
	Font               string `json:"font"`
	Error              string `json:"error,omitempty"`
	Timestamp          string `json:"timestamp"`
}

type ModelResponse struct {
	CurrentModel string   `json:"current_model"`
	Backend      string   `json:"backend"`
	Classes      []string `json:"classes"`
	Available    []string `json:"available,omitempty"`
}

type ConfigResponse struct {
	Model              any      `json:"model_config"`
	TranslateFile      string   `json:"translate_file"`
	TranslationsLoaded int      `json:"translations_loaded"`
	Languages          []string `json:"languages"`
	Font               string   `json:"font"`
	Annotation         any      `json:"annotation"`
	Palette            []string `json:"palette"`
}

// ProcessingInfo reports stage durations in milliseconds.
type ProcessingInfo struct {
	InferenceMs float64 `json:"inference_ms"`
	RenderMs    float64 `json:"render_ms"`
	TotalMs     float64 `json:"total_ms"`
}

type PredictResponse struct {
	Success             bool               `json:"success"`
	Detections          []detect.Detection `json:"detections"`
	SkippedBoxes        int                `json:"skipped_boxes"`
	AnnotatedImage      string             `json:"annotated_image,omitempty"`
	ModelUsed           string             `json:"model_used"`
	TranslateFile       string             `json:"translate_file"`
	Language            string             `json:"language"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	TotalDetections     int                `json:"total_detections"`
	Width               int                `json:"width"`
	Height              int                `json:"height"`
	Timestamp           string             `json:"timestamp"`
	Processing          ProcessingInfo     `json:"processing"`
}

type PDFPageResponse struct {
	Page   int               `json:"page"`
	Images []PredictResponse `json:"images"`
}

type PDFResponse struct {
	Success             bool              `json:"success"`
	TotalPages          int               `json:"total_pages"`
	Pages               []PDFPageResponse `json:"pages"`
	ModelUsed           string            `json:"model_used"`
	Language            string            `json:"language"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	TotalDetections     int               `json:"total_detections"`
	Timestamp           string            `json:"timestamp"`
	Processing          struct {
		ExtractionMs float64 `json:"extraction_ms"`
		TotalMs      float64 `json:"total_ms"`
	} `json:"processing"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a server around a loaded application context.
func NewServer(config Config, appCtx *app.AppContext) (*Server, error) {
	if appCtx == nil {
		return nil, errors.New("application context is required")
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		config.JPEGQuality = utils.DefaultJPEGQuality
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	return &Server{
		app:               appCtx,
		corsOrigin:        config.CORSOrigin,
		maxUploadMB:       config.MaxUploadMB,
		timeoutSec:        config.TimeoutSec,
		defaultConfidence: config.DefaultConfidence,
		pdfMaxPages:       config.PDFMaxPages,
		jpegQuality:       config.JPEGQuality,
		rateLimiter:       NewRateLimiterFromConfig(config.RateLimit),
		wsReadTimeout:     wsReadTimeout,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.app.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.rootHandler))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/model", s.corsMiddleware(s.modelHandler))
	mux.HandleFunc("/config", s.corsMiddleware(s.configHandler))
	mux.HandleFunc("/predict", s.corsMiddleware(s.rateLimitMiddleware(s.predictHandler)))
	mux.HandleFunc("/predict/", s.corsMiddleware(s.rateLimitMiddleware(s.predictHandler)))
	mux.HandleFunc("/predict/pdf", s.corsMiddleware(s.rateLimitMiddleware(s.predictPDFHandler)))
	mux.HandleFunc("/ws/predict", s.corsMiddleware(s.predictWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
