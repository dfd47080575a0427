package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/common"
	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/pipeline"
	"github.com/MeKo-Tech/yolodet/internal/translate"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// Output formats accepted by the predict endpoint.
const (
	formatJSON  = "json"
	formatCSV   = "csv"
	formatText  = "text"
	formatImage = "image"
)

const (
	sourceImage     = "image"
	sourcePDF       = "pdf"
	sourceWebSocket = "websocket"
)

// errBadRequest marks failures caused by the request rather than the server.
var errBadRequest = errors.New("bad request")

// predictRequest is a validated detection request.
type predictRequest struct {
	Image      image.Image
	Confidence float64
	Language   translate.Language
	Format     string
}

// predictHandler runs detection on an uploaded image.
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/predict" && r.URL.Path != "/predict/" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := s.app.RequirePipeline()
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceImage, "unavailable").Inc()
		s.writeErrorResponse(w, "Model not loaded", http.StatusServiceUnavailable)
		return
	}

	req, ok := s.parseImageRequest(w, r)
	if !ok {
		predictRequestsTotal.WithLabelValues(sourceImage, "invalid").Inc()
		return // error already written
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := p.Process(ctx, req.Image, req.Confidence, req.Language)
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceImage, "error").Inc()
		slog.Error("Detection failed", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Prediction failed: %v", err), http.StatusInternalServerError)
		return
	}

	predictRequestsTotal.WithLabelValues(sourceImage, "success").Inc()
	observeResult(sourceImage, res)

	s.writePredictResponse(w, req.Format, res)
}

// requestContext bounds a request by the configured timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
}

// parseImageRequest validates the multipart upload and form fields. It writes the
// error response itself and reports whether the request may proceed.
func (s *Server) parseImageRequest(w http.ResponseWriter, r *http.Request) (*predictRequest, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		s.handleFormParseError(w, err)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if !isImageUpload(header) {
		s.writeErrorResponse(w, "File must be an image", http.StatusBadRequest)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}

	req, err := s.parseOptions(r.FormValue("confidence"), r.FormValue("language"), formValue(r, "format"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}
	req.Image = img

	slog.Debug("Predict request",
		"filename", header.Filename,
		"size", header.Size,
		"confidence", req.Confidence,
		"language", req.Language,
		"format", req.Format)
	return req, true
}

// parseOptions validates confidence, language and output format.
func (s *Server) parseOptions(confidence, language, format string) (*predictRequest, error) {
	conf, err := s.parseConfidence(confidence)
	if err != nil {
		return nil, err
	}
	lang, err := s.app.Languages.Parse(language)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported language, use one of %s", errBadRequest,
			strings.Join(s.app.Languages.Supported(), ", "))
	}
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = formatJSON
	case formatJSON, formatCSV, formatText, formatImage:
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", errBadRequest, format)
	}
	return &predictRequest{Confidence: conf, Language: lang, Format: format}, nil
}

// parseConfidence parses the threshold, falling back to the configured default.
func (s *Server) parseConfidence(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return s.defaultConfidence, nil
	}
	conf, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(conf) {
		return 0, fmt.Errorf("%w: confidence must be a number", errBadRequest)
	}
	if conf < 0 || conf > 1 {
		return 0, fmt.Errorf("%w: confidence must be between 0 and 1", errBadRequest)
	}
	return conf, nil
}

// isImageUpload checks the declared part content type. Parts without one are accepted
// and left to the decoder.
func isImageUpload(header *multipart.FileHeader) bool {
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(ct), "image/")
}

// formValue reads a field from the form, falling back to the query string.
func formValue(r *http.Request, key string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func (s *Server) handleFormParseError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
}

// observeResult records per-image detection metrics.
func observeResult(source string, res *pipeline.Result) {
	inferenceDuration.WithLabelValues(source).Observe(time.Duration(res.Timing.InferenceNs).Seconds())
	detectionsPerRequest.WithLabelValues(source).Observe(float64(len(res.Detections)))
	if res.Skipped > 0 {
		skippedBoxesTotal.Add(float64(res.Skipped))
	}
}

func (s *Server) writePredictResponse(w http.ResponseWriter, format string, res *pipeline.Result) {
	switch format {
	case formatCSV:
		s.writeFormatted(w, "text/csv; charset=utf-8", pipeline.ToCSV, res)
	case formatText:
		s.writeFormatted(w, "text/plain; charset=utf-8", pipeline.ToPlainText, res)
	case formatImage:
		data, err := pipeline.EncodeJPEG(res.Annotated, s.jpegQuality)
		if err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("Failed to encode image: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Total-Detections", strconv.Itoa(len(res.Detections)))
		_, _ = w.Write(data)
	default:
		resp, err := s.buildPredictResponse(res, true)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, nil, http.StatusOK, resp)
	}
}

func (s *Server) writeFormatted(w http.ResponseWriter, contentType string, format func(*pipeline.Result) (string, error), res *pipeline.Result) {
	out, err := format(res)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Formatting failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(out))
}

// buildPredictResponse converts a pipeline result to the JSON response body.
func (s *Server) buildPredictResponse(res *pipeline.Result, withImage bool) (PredictResponse, error) {
	dets := res.Detections
	if dets == nil {
		dets = []detect.Detection{}
	}
	resp := PredictResponse{
		Success:             true,
		Detections:          dets,
		SkippedBoxes:        res.Skipped,
		ModelUsed:           orNone(s.app.ModelName()),
		TranslateFile:       orNone(s.app.TranslationFile()),
		Language:            string(res.Language),
		ConfidenceThreshold: res.Confidence,
		TotalDetections:     len(dets),
		Width:               res.Width,
		Height:              res.Height,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		Processing: ProcessingInfo{
			InferenceMs: common.Milliseconds(time.Duration(res.Timing.InferenceNs)),
			RenderMs:    common.Milliseconds(time.Duration(res.Timing.RenderNs)),
			TotalMs:     common.Milliseconds(time.Duration(res.Timing.TotalNs)),
		},
	}
	if withImage && res.Annotated != nil {
		encoded, err := pipeline.EncodeBase64JPEG(res.Annotated, s.jpegQuality)
		if err != nil {
			return PredictResponse{}, fmt.Errorf("failed to encode annotated image: %w", err)
		}
		resp.AnnotatedImage = encoded
	}
	return resp, nil
}
