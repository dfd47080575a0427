package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// isolate points HOME and XDG_CONFIG_HOME at an empty directory and changes into it so no
// real configuration file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "yolodet.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Model.Backend != BackendONNX {
		t.Errorf("Expected default backend %s, got %s", BackendONNX, cfg.Model.Backend)
	}
}

// TestLoadFromSearchPath tests that yolodet.yaml in the working directory is found.
func TestLoadFromSearchPath(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
log_level: debug
model:
  path: yolov8s.onnx
  iou_threshold: 0.5
server:
  port: 9090
  rate_limit:
    enabled: true
    requests_per_minute: 10
`)

	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Model.Path != "yolov8s.onnx" || cfg.Model.IoUThreshold != 0.5 {
		t.Errorf("Unexpected model config: %+v", cfg.Model)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.RequestsPerMinute != 10 {
		t.Errorf("Unexpected rate limit config: %+v", cfg.Server.RateLimit)
	}
	// Unset keys keep defaults.
	if cfg.Server.RateLimit.RequestsPerHour != 1000 {
		t.Errorf("Expected default requests per hour 1000, got %d", cfg.Server.RateLimit.RequestsPerHour)
	}
	if !strings.HasSuffix(loader.GetConfigFileUsed(), "yolodet.yaml") {
		t.Errorf("Expected yolodet.yaml to be used, got %s", loader.GetConfigFileUsed())
	}
}

// TestLoadWithFile tests loading an explicit file.
func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("translation:\n  target_language: de\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.Translation.TargetLanguage != "de" {
		t.Errorf("Expected target language de, got %s", cfg.Translation.TargetLanguage)
	}
}

func TestLoadWithFileErrors(t *testing.T) {
	dir := isolate(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(filepath.Join(dir, "nope.yaml"))
		if err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("Expected missing file error, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("server: [port"), 0o600); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		if _, err := NewLoaderWithViper(viper.New()).LoadWithFile(path); err == nil {
			t.Error("Expected error for malformed YAML")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		if err == nil || !strings.Contains(err.Error(), "validation failed") {
			t.Errorf("Expected validation error, got %v", err)
		}
		cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(path)
		if err != nil {
			t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
		}
		if cfg.Server.Port != 0 {
			t.Errorf("Expected port 0, got %d", cfg.Server.Port)
		}
	})
}

// TestEnvironmentOverrides tests YOLODET_ environment variables.
func TestEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("YOLODET_LOG_LEVEL", "warn")
	t.Setenv("YOLODET_SERVER_PORT", "7070")
	t.Setenv("YOLODET_MODEL_BACKEND", "remote")
	t.Setenv("YOLODET_MODEL_REMOTE_URL", "http://detector:9000/predict")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Model.Backend != BackendRemote || cfg.Model.RemoteURL != "http://detector:9000/predict" {
		t.Errorf("Unexpected model config: %+v", cfg.Model)
	}
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)

	paths := GetConfigSearchPaths()
	want := []string{".", dir, filepath.Join(dir, "xdg", "yolodet"), "/etc/yolodet"}
	if len(paths) != len(want) {
		t.Fatalf("Expected %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

// TestGenerateDefaultConfigFile verifies the written file loads back to the defaults.
func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "generated.yaml")

	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() unexpected error: %v", err)
	}
	if err := GenerateDefaultConfigFile(path); err == nil {
		t.Error("Expected error when the file already exists")
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	defaults := DefaultConfig()
	if cfg.Server != defaults.Server {
		t.Errorf("Server config mismatch: got %+v, want %+v", cfg.Server, defaults.Server)
	}
	if cfg.Model != defaults.Model {
		t.Errorf("Model config mismatch: got %+v, want %+v", cfg.Model, defaults.Model)
	}
	if cfg.Annotation != defaults.Annotation {
		t.Errorf("Annotation config mismatch: got %+v, want %+v", cfg.Annotation, defaults.Annotation)
	}
}

func TestWriteYAML(t *testing.T) {
	cfg := DefaultConfig()
	var buf bytes.Buffer
	if err := WriteYAML(&buf, &cfg); err != nil {
		t.Fatalf("WriteYAML() unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	for _, key := range []string{"log_level", "model", "translation", "font", "annotation", "server", "gpu"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected top-level key %q in output", key)
		}
	}
}
