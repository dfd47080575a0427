package support

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/yolodet/internal/app"
	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/server"
	"github.com/MeKo-Tech/yolodet/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Test environment
	TempDir string
	Config  *config.Config

	// Scripted model; nil means no model is loaded
	Detector *testutil.FakeDetector

	// Server under test
	HTTPServer *httptest.Server
	Server     *server.Server
	RateLimit  server.RateLimitConfig

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   []byte
	LastHTTPHeaders    http.Header
}

// NewTestContext creates a scenario context with default configuration in a fresh
// temporary directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "yolodet-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.Model.ModelsDir = tempDir
	cfg.Model.Path = "missing.onnx"
	cfg.Translation.Dir = tempDir
	cfg.Font.File = "no-such-font.ttf"

	return &TestContext{
		TempDir: tempDir,
		Config:  &cfg,
	}, nil
}

// StartServer builds the application around the scripted detector and serves it
// with httptest.
func (testCtx *TestContext) StartServer() error {
	if testCtx.HTTPServer != nil {
		return nil
	}

	var (
		appCtx *app.AppContext
		err    error
	)
	if testCtx.Detector == nil {
		appCtx, err = app.New(testCtx.Config)
	} else {
		appCtx, err = app.NewWithDetector(testCtx.Config, testCtx.Detector)
	}
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		MaxUploadMB:       1,
		TimeoutSec:        5,
		DefaultConfidence: testCtx.Config.Server.DefaultConfidence,
		PDFMaxPages:       testCtx.Config.Server.PDFMaxPages,
		RateLimit:         testCtx.RateLimit,
	}, appCtx)
	if err != nil {
		_ = appCtx.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	testCtx.Server = srv
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

// URL returns the absolute URL of path on the test server.
func (testCtx *TestContext) URL(path string) string {
	return testCtx.HTTPServer.URL + path
}

// TempFile returns a path inside the scenario directory.
func (testCtx *TestContext) TempFile(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}

// Cleanup stops the server and removes the scenario directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Server != nil {
		if err := testCtx.Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close server: %w", err))
		}
		testCtx.Server = nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
