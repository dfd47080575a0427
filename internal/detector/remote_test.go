package detector

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteDetectorValidation(t *testing.T) {
	for _, u := range []string{"", "ftp://host/x", "not a url", "http://"} {
		_, err := NewRemoteDetector(RemoteConfig{URL: u})
		assert.Error(t, err, u)
	}
	r, err := NewRemoteDetector(RemoteConfig{URL: "http://inference:8000/predict/"})
	require.NoError(t, err)
	assert.Equal(t, "inference:8000", r.Name())
	assert.Len(t, r.Classes(), 80)
}

func TestRemoteDetectorDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "0.4", r.FormValue("confidence"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		_ = f.Close()
		assert.Equal(t, "image.jpg", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"boxes": []map[string]any{
				{"xyxy": []float64{1, 2, 30, 40}, "confidence": 0.9, "class_id": 16},
				{"xyxy": []float64{1, 2, 3}, "confidence": 0.9, "class_id": 1},
				{"xyxy": []float64{5, 5, 6, 6}, "confidence": 0.1, "class_id": 2},
			},
		})
	}))
	defer srv.Close()

	r, err := NewRemoteDetector(RemoteConfig{URL: srv.URL + "/predict", Name: "remote-yolo", Timeout: time.Second})
	require.NoError(t, err)

	boxes, err := r.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.4)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 16, boxes[0].ClassID)
	assert.InDelta(t, 30, boxes[0].Box.X2, 1e-9)
	assert.Equal(t, "remote-yolo", r.Name())
	require.NoError(t, r.Close())
}

func TestRemoteDetectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad-json" {
			_, _ = w.Write([]byte("{"))
			return
		}
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	r, err := NewRemoteDetector(RemoteConfig{URL: srv.URL + "/predict"})
	require.NoError(t, err)
	_, err = r.Detect(context.Background(), img, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model crashed")

	r, err = NewRemoteDetector(RemoteConfig{URL: srv.URL + "/bad-json"})
	require.NoError(t, err)
	_, err = r.Detect(context.Background(), img, 0.5)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Detect(ctx, img, 0.5)
	require.Error(t, err)
}

func TestRemoteDetectorHealth(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	r, err := NewRemoteDetector(RemoteConfig{URL: srv.URL + "/predict/"})
	require.NoError(t, err)
	require.NoError(t, r.CheckHealth(context.Background()))

	unhealthy.Store(true)
	require.Error(t, r.CheckHealth(context.Background()))
}
