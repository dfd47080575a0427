package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yolodet/internal/palette"
	"github.com/MeKo-Tech/yolodet/internal/testutil"
)

func TestNewServerRequiresApp(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	assert.Error(t, err)
}

func TestNewServerDefaults(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector(), func(c *Config) {
		*c = Config{}
	})
	assert.Equal(t, int64(50), srv.maxUploadMB)
	assert.Equal(t, 30, srv.timeoutSec)
	assert.Equal(t, "*", srv.corsOrigin)
	assert.Nil(t, srv.rateLimiter)
	assert.Positive(t, srv.jpegQuality)
}

func TestRootHandler(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "YOLO Object Detection API", resp.Message)
	assert.Contains(t, resp.Endpoints, "/predict/")
	assert.Contains(t, resp.Endpoints, "/ws/predict")
}

func TestRootHandlerUnknownPath(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, testutil.NewFakeDetector())
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "fake.onnx", resp.CurrentModel)
		assert.Equal(t, 4, resp.TranslationsLoaded)
		assert.NotEmpty(t, resp.Font)
		assert.Empty(t, resp.Error)
	})

	t.Run("degraded", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "none", resp.CurrentModel)
		assert.NotEmpty(t, resp.Error)
	})
}

func TestHeadHasNoBody(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	rec := serve(srv, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestModelHandler(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	testutil.WriteFile(t, srv.app.Config.Model.ModelsDir, "yolov8n.onnx", "stub")

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ModelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fake.onnx", resp.CurrentModel)
	assert.Equal(t, "onnx", resp.Backend)
	assert.Equal(t, testutil.SampleClasses, resp.Classes)
	assert.Equal(t, []string{"yolov8n.onnx"}, resp.Available)
}

func TestConfigHandler(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"en", "ru"}, resp.Languages)
	assert.Equal(t, 4, resp.TranslationsLoaded)
	assert.Len(t, resp.Palette, palette.Size)
	assert.NotNil(t, resp.Model)
	assert.NotNil(t, resp.Annotation)
}

func TestReadOnlyEndpointsRejectPost(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	for _, path := range []string{"/", "/health", "/model", "/config"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(http.MethodPost, path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "Method not allowed", resp.Error)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testutil.NewFakeDetector())
	serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "yolodet_http_requests_total")
}
