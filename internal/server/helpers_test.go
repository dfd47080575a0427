package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yolodet/internal/app"
	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/detector"
	"github.com/MeKo-Tech/yolodet/internal/testutil"
)

// testAppConfig returns a config with a sample translation table and no model on disk.
func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "coco.csv", testutil.SampleTranslations)
	cfg := config.DefaultConfig()
	cfg.Model.ModelsDir = dir
	cfg.Model.Path = "missing.onnx"
	cfg.Translation.Dir = dir
	cfg.Font.File = "no-such-font.ttf"
	return &cfg
}

// newTestServer builds a server around det. A nil det yields a degraded server.
func newTestServer(t *testing.T, det detector.Detector, opts ...func(*Config)) *Server {
	t.Helper()
	cfg := testAppConfig(t)

	var (
		appCtx *app.AppContext
		err    error
	)
	if det == nil {
		appCtx, err = app.New(cfg)
	} else {
		appCtx, err = app.NewWithDetector(cfg, det)
	}
	require.NoError(t, err)

	serverCfg := Config{MaxUploadMB: 1, TimeoutSec: 5, DefaultConfidence: 0.5, PDFMaxPages: 5}
	for _, opt := range opts {
		opt(&serverCfg)
	}
	srv, err := NewServer(serverCfg, appCtx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// filePart describes one multipart file field.
type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// newMultipartRequest builds a POST with the given file parts and form fields.
func newMultipartRequest(t *testing.T, target string, parts []filePart, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// imagePart wraps PNG bytes as the predict "file" field.
func imagePart(data []byte) filePart {
	return filePart{field: "file", filename: "scene.png", contentType: "image/png", data: data}
}

// serve routes req through the full mux.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
