package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// RemoteConfig configures the HTTP inference backend.
type RemoteConfig struct {
	URL     string        // Inference endpoint accepting multipart "file" and "confidence"
	Timeout time.Duration // Per-request timeout (default: 30s)
	Name    string        // Model name reported to clients
	Classes ClassList
}

// RemoteDetector delegates inference to an HTTP service.
type RemoteDetector struct {
	url     string
	name    string
	classes ClassList
	client  *http.Client
}

type remoteBox struct {
	XYXY       []float64 `json:"xyxy"`
	Confidence float64   `json:"confidence"`
	ClassID    int       `json:"class_id"`
}

type remoteResponse struct {
	Boxes []remoteBox `json:"boxes"`
}

// NewRemoteDetector validates the endpoint URL and builds an HTTP client.
func NewRemoteDetector(config RemoteConfig) (*RemoteDetector, error) {
	if config.URL == "" {
		return nil, errors.New("remote url cannot be empty")
	}
	u, err := url.Parse(config.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url: %q", config.URL)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	name := config.Name
	if name == "" {
		name = u.Host
	}
	classes := config.Classes
	if len(classes) == 0 {
		classes = COCOClasses
	}
	return &RemoteDetector{
		url:     strings.TrimRight(config.URL, "/"),
		name:    name,
		classes: classes,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns the configured model name.
func (r *RemoteDetector) Name() string { return r.name }

// ClassName maps a class index to its name.
func (r *RemoteDetector) ClassName(classID int) (string, bool) { return r.classes.ClassName(classID) }

// Classes returns a copy of the class names.
func (r *RemoteDetector) Classes() []string {
	out := make([]string, len(r.classes))
	copy(out, r.classes)
	return out
}

// Detect uploads img as JPEG and decodes the returned boxes. Boxes below confidence are
// dropped even if the service returns them.
func (r *RemoteDetector) Detect(ctx context.Context, img image.Image, confidence float64) ([]detect.RawBox, error) {
	data, err := utils.EncodeJPEG(img, utils.DefaultJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("confidence", strconv.FormatFloat(confidence, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write confidence field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]detect.RawBox, 0, len(result.Boxes))
	for i, b := range result.Boxes {
		if len(b.XYXY) != 4 {
			slog.Debug("Remote box has wrong coordinate count", "index", i, "len", len(b.XYXY))
			continue
		}
		if b.Confidence < confidence {
			continue
		}
		out = append(out, detect.RawBox{
			Box:        detect.Box{X1: b.XYXY[0], Y1: b.XYXY[1], X2: b.XYXY[2], Y2: b.XYXY[3]},
			Confidence: b.Confidence,
			ClassID:    b.ClassID,
		})
	}
	return out, nil
}

// CheckHealth probes the service's /health endpoint.
func (r *RemoteDetector) CheckHealth(ctx context.Context) error {
	base := r.url
	if u, err := url.Parse(r.url); err == nil {
		u.Path = "/health"
		u.RawQuery = ""
		base = u.String()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-detector resources.
func (r *RemoteDetector) Close() error { return nil }
