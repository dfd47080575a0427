// Package app wires configuration, model, translations and font into the shared
// application context used by the server and the CLI.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/detector"
	"github.com/MeKo-Tech/yolodet/internal/fonts"
	"github.com/MeKo-Tech/yolodet/internal/models"
	"github.com/MeKo-Tech/yolodet/internal/pipeline"
	"github.com/MeKo-Tech/yolodet/internal/render"
	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// ErrNoDetector is returned when the model failed to load.
var ErrNoDetector = errors.New("no detector loaded")

// AppContext holds everything a request needs. It is built once at startup and only
// read afterwards.
type AppContext struct {
	Config    *config.Config
	Languages translate.Languages
	Table     *translate.Table
	Resolver  *translate.Resolver
	Fonts     *fonts.Provider
	Detector  detector.Detector
	Labeler   *detect.Labeler
	Renderer  *render.Renderer
	Pipeline  *pipeline.Pipeline

	// ModelErr is set when the detector could not be created. The context is then
	// degraded: Pipeline and Detector are nil.
	ModelErr error
}

// New loads the model, translation table and font described by cfg. A model that fails
// to load leaves the context degraded instead of failing startup.
func New(cfg *config.Config) (*AppContext, error) {
	det, err := OpenDetector(cfg)
	if err != nil {
		slog.Error("Model unavailable, serving degraded", "backend", cfg.Model.Backend, "error", err)
	}
	a, buildErr := build(cfg, det)
	if buildErr != nil {
		if det != nil {
			_ = det.Close()
		}
		return nil, buildErr
	}
	a.ModelErr = err
	return a, nil
}

// NewWithDetector builds a context around an already created detector.
func NewWithDetector(cfg *config.Config, det detector.Detector) (*AppContext, error) {
	if det == nil {
		return nil, ErrNoDetector
	}
	return build(cfg, det)
}

func build(cfg *config.Config, det detector.Detector) (*AppContext, error) {
	langs, err := cfg.ToLanguages()
	if err != nil {
		return nil, fmt.Errorf("invalid languages: %w", err)
	}
	table := LoadTranslations(cfg)
	resolver := translate.NewResolver(table, langs)
	provider := fonts.Resolve(fonts.DefaultStrategies(cfg.Font.File, cfg.Font.SearchDirs, cfg.Font.Fallbacks)...)

	a := &AppContext{
		Config:    cfg,
		Languages: langs,
		Table:     table,
		Resolver:  resolver,
		Fonts:     provider,
	}
	if det == nil {
		a.ModelErr = ErrNoDetector
		return a, nil
	}

	a.Detector = det
	a.Labeler = detect.NewLabeler(det, resolver)
	a.Renderer = render.New(cfg.ToRenderOptions(), provider, a.Labeler)
	a.Pipeline, err = pipeline.NewBuilder().
		WithDetector(det).
		WithLabeler(a.Labeler).
		WithRenderer(a.Renderer).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	slog.Info("Application ready",
		"model", det.Name(),
		"classes", len(det.Classes()),
		"translations", table.Len(),
		"font", provider.Name(),
		"languages", langs.Supported())
	return a, nil
}

// Ready reports whether a detector is loaded.
func (a *AppContext) Ready() bool {
	return a != nil && a.Pipeline != nil
}

// RequirePipeline returns the pipeline or the reason it is missing.
func (a *AppContext) RequirePipeline() (*pipeline.Pipeline, error) {
	if a.Ready() {
		return a.Pipeline, nil
	}
	if a != nil && a.ModelErr != nil && !errors.Is(a.ModelErr, ErrNoDetector) {
		return nil, fmt.Errorf("%w: %w", ErrNoDetector, a.ModelErr)
	}
	return nil, ErrNoDetector
}

// ModelName returns the loaded model name, empty when degraded.
func (a *AppContext) ModelName() string {
	if a == nil || a.Detector == nil {
		return ""
	}
	return a.Detector.Name()
}

// TranslationFile returns the path the translation table came from.
func (a *AppContext) TranslationFile() string {
	if a == nil {
		return ""
	}
	if p := a.Table.Path(); p != "" {
		return p
	}
	return a.Config.TranslationPath()
}

// Close releases the detector.
func (a *AppContext) Close() error {
	if a == nil || a.Detector == nil {
		return nil
	}
	return a.Detector.Close()
}

// LoadClasses reads class names from the classes file, then the model config file.
// It returns nil when neither is configured so the backend picks its own names.
func LoadClasses(cfg *config.Config) (detector.ClassList, error) {
	if cfg.Model.ClassesFile != "" {
		path := models.ResolveModelPath(cfg.Model.ModelsDir, cfg.Model.ClassesFile)
		classes, err := detector.LoadClassFile(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("Class names loaded", "source", path, "classes", len(classes))
		return classes, nil
	}
	if cfg.Model.ConfigFile != "" {
		path := models.ResolveModelPath(cfg.Model.ModelsDir, cfg.Model.ConfigFile)
		mc, err := detector.LoadModelConfig(path)
		if err != nil {
			return nil, err
		}
		if len(mc.Classes) > 0 {
			slog.Debug("Class names loaded", "source", path, "classes", len(mc.Classes))
			return detector.ClassList(mc.Classes), nil
		}
	}
	return nil, nil
}

// OpenDetector creates the configured backend. The ONNX backend is wrapped in a
// serialising worker.
func OpenDetector(cfg *config.Config) (detector.Detector, error) {
	classes, err := LoadClasses(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load class names: %w", err)
	}

	switch cfg.Model.Backend {
	case config.BackendRemote:
		d, err := detector.NewRemoteDetector(cfg.ToRemoteConfig(classes))
		if err != nil {
			return nil, err
		}
		slog.Info("Model loaded", "backend", config.BackendRemote, "url", cfg.Model.RemoteURL)
		return d, nil
	case config.BackendONNX, "":
		onnxCfg, err := cfg.ToONNXConfig()
		if err != nil {
			return nil, err
		}
		onnxCfg.Classes = classes
		if cfg.Model.ConfigFile != "" {
			if mc, err := detector.LoadModelConfig(models.ResolveModelPath(cfg.Model.ModelsDir, cfg.Model.ConfigFile)); err == nil &&
				mc.Width > 0 && mc.Width == mc.Height {
				onnxCfg.InputSize = mc.Width
			}
		}
		d, err := detector.NewONNXDetector(onnxCfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Model loaded", "backend", config.BackendONNX, "path", onnxCfg.ModelPath)
		return detector.NewSerial(d), nil
	default:
		return nil, fmt.Errorf("unknown model backend: %s", cfg.Model.Backend)
	}
}

// LoadTranslations reads the configured translation table. A missing or unreadable table
// yields an empty one so labels stay in the source language.
func LoadTranslations(cfg *config.Config) *translate.Table {
	path := cfg.TranslationPath()
	if path == "" {
		slog.Info("No translation file configured")
		return translate.NewTable(nil)
	}
	table, err := translate.LoadTable(path, cfg.ToColumns())
	if err != nil {
		slog.Warn("Translation table unavailable, labels stay untranslated", "path", path, "error", err)
		return translate.NewTable(nil)
	}
	slog.Info("Translations loaded", "path", path, "entries", table.Len())
	return table
}
