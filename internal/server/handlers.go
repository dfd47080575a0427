package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/models"
	"github.com/MeKo-Tech/yolodet/internal/palette"
	"github.com/MeKo-Tech/yolodet/internal/version"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	noneValue      = "none"
)

// readOnly reports whether the method may read a resource.
func readOnly(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// rootHandler describes the service and its endpoints.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	if !readOnly(r) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, r, http.StatusOK, RootResponse{
		Message: "YOLO Object Detection API",
		Version: version.Version,
		Endpoints: map[string]string{
			"/predict/":    "POST - detect objects in an image",
			"/predict/pdf": "POST - detect objects in the images of a PDF",
			"/ws/predict":  "GET - websocket detection stream",
			"/health":      "GET - service health",
			"/model":       "GET - loaded model",
			"/config":      "GET - active configuration",
			"/metrics":     "GET - Prometheus metrics",
		},
	})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !readOnly(r) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:             statusHealthy,
		CurrentModel:       orNone(s.app.ModelName()),
		TranslateFile:      orNone(s.app.TranslationFile()),
		TranslationsLoaded: s.app.Table.Len(),
		Font:               s.app.Fonts.Name(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}
	if !s.app.Ready() {
		response.Status = statusDegraded
		if s.app.ModelErr != nil {
			response.Error = s.app.ModelErr.Error()
		}
	}
	s.writeJSON(w, r, http.StatusOK, response)
}

// modelHandler returns the loaded model and the models available on disk.
func (s *Server) modelHandler(w http.ResponseWriter, r *http.Request) {
	if !readOnly(r) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := ModelResponse{
		CurrentModel: orNone(s.app.ModelName()),
		Backend:      s.app.Config.Model.Backend,
		Classes:      []string{},
	}
	if s.app.Detector != nil {
		response.Classes = s.app.Detector.Classes()
	}
	if available, err := models.ListAvailableModels(s.app.Config.Model.ModelsDir); err == nil {
		for _, m := range available {
			response.Available = append(response.Available, m.Name)
		}
	}
	s.writeJSON(w, r, http.StatusOK, response)
}

// configHandler returns the active configuration and the class colour palette.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if !readOnly(r) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.app.Config
	s.writeJSON(w, r, http.StatusOK, ConfigResponse{
		Model:              cfg.Model,
		TranslateFile:      orNone(s.app.TranslationFile()),
		TranslationsLoaded: s.app.Table.Len(),
		Languages:          s.app.Languages.Supported(),
		Font:               s.app.Fonts.Name(),
		Annotation:         cfg.Annotation,
		Palette:            palette.HexColors(),
	})
}

// writeJSON writes v with status. HEAD requests get headers only.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r != nil && r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

func orNone(s string) string {
	if s == "" {
		return noneValue
	}
	return s
}
