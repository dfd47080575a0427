package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/detector"
	"github.com/MeKo-Tech/yolodet/internal/layout"
	"github.com/MeKo-Tech/yolodet/internal/models"
	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/MeKo-Tech/yolodet/internal/palette"
	"github.com/MeKo-Tech/yolodet/internal/render"
	"github.com/MeKo-Tech/yolodet/internal/translate"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// Detection backends.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

const autoMemoryLimit = "auto"

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	det := detector.DefaultONNXConfig()
	lay := layout.DefaultConfig()
	cols := translate.DefaultColumns()
	langs := translate.DefaultLanguages()

	return Config{
		LogLevel: "info",
		Verbose:  false,
		Model: ModelConfig{
			Backend:       BackendONNX,
			Path:          models.DefaultModel,
			ModelsDir:     models.DefaultModelsDir,
			RemoteTimeout: 30,
			InputSize:     det.InputSize,
			IoUThreshold:  det.IoUThreshold,
			MaxDetections: det.MaxDetections,
			Agnostic:      det.Agnostic,
			NumThreads:    det.NumThreads,
		},
		Translation: TranslationConfig{
			File:           models.DefaultTranslationFile,
			Dir:            models.DefaultTranslationsDir,
			SourceLanguage: string(langs.Source),
			TargetLanguage: string(langs.Target),
			SourceColumn:   cols.Source,
			TargetColumn:   cols.Target,
			ClassColumn:    cols.ClassNumber,
		},
		Font: FontConfig{
			File: "arial.ttf",
		},
		Annotation: AnnotationConfig{
			LineThicknessBase:   lay.LineThicknessBase,
			LineThicknessMin:    lay.LineThicknessMin,
			LineThicknessMax:    lay.LineThicknessMax,
			FontSizeBase:        lay.FontSizeBase,
			FontSizeMin:         lay.FontSizeMin,
			FontSizeMax:         lay.FontSizeMax,
			TextPadding:         lay.TextPadding,
			TextOffset:          lay.TextOffset,
			ReferenceHeight:     lay.ReferenceHeight,
			BrightnessThreshold: palette.DefaultBrightnessThreshold,
			JPEGQuality:         utils.DefaultJPEGQuality,
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxUploadMB:       50,
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			DefaultConfidence: 0.5,
			PDFMaxPages:       20,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 5000,
				MaxDataPerDay:     1 << 30,
			},
		},
		GPU: GPUConfig{
			Enabled:     false,
			Device:      0,
			MemoryLimit: autoMemoryLimit,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := c.validateModel(); err != nil {
		return err
	}

	if _, err := translate.NewLanguages(c.Translation.SourceLanguage, c.Translation.TargetLanguage); err != nil {
		return fmt.Errorf("invalid translation languages: %w", err)
	}

	if err := c.ToLayoutConfig().Validate(); err != nil {
		return fmt.Errorf("invalid annotation config: %w", err)
	}
	if c.Annotation.BrightnessThreshold < 0 || c.Annotation.BrightnessThreshold > 255 {
		return fmt.Errorf("invalid brightness threshold: %.1f (must be between 0 and 255)", c.Annotation.BrightnessThreshold)
	}
	if c.Annotation.JPEGQuality < 1 || c.Annotation.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", c.Annotation.JPEGQuality)
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if c.GPU.MemoryLimit != autoMemoryLimit && c.GPU.MemoryLimit != "" {
		if err := validateMemoryLimit(c.GPU.MemoryLimit); err != nil {
			return fmt.Errorf("invalid GPU memory limit: %w", err)
		}
	}
	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d (must not be negative)", c.GPU.Device)
	}

	return nil
}

func (c *Config) validateModel() error {
	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.InputSize < 32 {
			return fmt.Errorf("invalid model input size: %d (must be at least 32)", c.Model.InputSize)
		}
	case BackendRemote:
		if c.Model.RemoteURL == "" {
			return fmt.Errorf("model.remote_url is required for the %s backend", BackendRemote)
		}
		if c.Model.RemoteTimeout <= 0 {
			return fmt.Errorf("invalid remote timeout: %d (must be positive)", c.Model.RemoteTimeout)
		}
	default:
		return fmt.Errorf("invalid model backend: %s (must be one of: %s, %s)", c.Model.Backend, BackendONNX, BackendRemote)
	}
	if err := validateThreshold(c.Model.IoUThreshold, "model.iou_threshold"); err != nil {
		return err
	}
	if c.Model.MaxDetections < 0 {
		return fmt.Errorf("invalid max detections: %d (must not be negative)", c.Model.MaxDetections)
	}
	if c.Model.NumThreads < 0 {
		return fmt.Errorf("invalid num threads: %d (must not be negative)", c.Model.NumThreads)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if err := validateThreshold(c.Server.DefaultConfidence, "server.default_confidence"); err != nil {
		return err
	}
	if c.Server.PDFMaxPages < 0 {
		return fmt.Errorf("invalid pdf max pages: %d (must not be negative)", c.Server.PDFMaxPages)
	}
	rl := c.Server.RateLimit
	if rl.Enabled && (rl.RequestsPerMinute <= 0 || rl.RequestsPerHour <= 0) {
		return fmt.Errorf("invalid rate limit: requests per minute and hour must be positive when enabled")
	}
	if rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
		return fmt.Errorf("invalid rate limit: daily quotas must not be negative")
	}
	return nil
}

// ModelPath returns the model file path resolved against the models directory.
func (c *Config) ModelPath() string {
	return models.ResolveModelPath(c.Model.ModelsDir, c.Model.Path)
}

// TranslationPath returns the translation table path, empty when none is configured.
func (c *Config) TranslationPath() string {
	if c.Translation.File == "" {
		return ""
	}
	return models.ResolveTranslationPath(c.Translation.Dir, c.Translation.File)
}

// ToONNXConfig converts the model section to the ONNX backend configuration.
// Class names are left empty and filled in by the caller.
func (c *Config) ToONNXConfig() (detector.ONNXConfig, error) {
	gpu, err := c.ToGPUConfig()
	if err != nil {
		return detector.ONNXConfig{}, err
	}
	return detector.ONNXConfig{
		ModelPath:     c.ModelPath(),
		LibraryPath:   c.Model.LibraryPath,
		InputSize:     c.Model.InputSize,
		IoUThreshold:  c.Model.IoUThreshold,
		MaxDetections: c.Model.MaxDetections,
		Agnostic:      c.Model.Agnostic,
		NumThreads:    c.Model.NumThreads,
		GPU:           gpu,
	}, nil
}

// ToRemoteConfig converts the model section to the HTTP backend configuration.
func (c *Config) ToRemoteConfig(classes detector.ClassList) detector.RemoteConfig {
	return detector.RemoteConfig{
		URL:     c.Model.RemoteURL,
		Timeout: time.Duration(c.Model.RemoteTimeout) * time.Second,
		Name:    c.Model.Path,
		Classes: classes,
	}
}

// ToGPUConfig converts the GPU section to the ONNX Runtime CUDA settings.
func (c *Config) ToGPUConfig() (onnx.GPUConfig, error) {
	gpu := onnx.DefaultGPUConfig()
	gpu.UseGPU = c.GPU.Enabled
	gpu.DeviceID = c.GPU.Device
	limit, err := parseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return onnx.GPUConfig{}, fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	gpu.GPUMemLimit = limit
	return gpu, nil
}

// ToLayoutConfig converts the annotation section to layout constants.
func (c *Config) ToLayoutConfig() layout.Config {
	a := c.Annotation
	return layout.Config{
		LineThicknessBase: a.LineThicknessBase,
		LineThicknessMin:  a.LineThicknessMin,
		LineThicknessMax:  a.LineThicknessMax,
		FontSizeBase:      a.FontSizeBase,
		FontSizeMin:       a.FontSizeMin,
		FontSizeMax:       a.FontSizeMax,
		TextPadding:       a.TextPadding,
		TextOffset:        a.TextOffset,
		ReferenceHeight:   a.ReferenceHeight,
	}
}

// ToRenderOptions converts the annotation section to renderer options.
func (c *Config) ToRenderOptions() render.Options {
	return render.Options{Layout: c.ToLayoutConfig(), BrightnessThreshold: c.Annotation.BrightnessThreshold}
}

// ToColumns returns the translation CSV header layout.
func (c *Config) ToColumns() translate.Columns {
	return translate.Columns{
		Source:      c.Translation.SourceColumn,
		Target:      c.Translation.TargetColumn,
		ClassNumber: c.Translation.ClassColumn,
	}
}

// ToLanguages returns the configured language pair.
func (c *Config) ToLanguages() (translate.Languages, error) {
	return translate.NewLanguages(c.Translation.SourceLanguage, c.Translation.TargetLanguage)
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

var memoryUnits = []struct {
	suffix string
	factor float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// validateMemoryLimit validates GPU memory limit format (e.g., "1GB", "512MB").
func validateMemoryLimit(limit string) error {
	_, err := parseMemoryLimit(limit)
	return err
}

// parseMemoryLimit converts a limit such as "512MB" to bytes. Empty and "auto" mean no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == autoMemoryLimit {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, unit := range memoryUnits {
		if !strings.HasSuffix(upper, unit.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(upper, unit.suffix))
		n, err := strconv.ParseFloat(numStr, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * unit.factor), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
