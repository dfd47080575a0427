// Package models resolves model weights and translation tables on disk.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Default file names.
const (
	DefaultModel           = "yolov8n.onnx"
	DefaultTranslationFile = "coco.csv"
)

// Default directories, relative to the project root or working directory.
const (
	DefaultModelsDir       = "models"
	DefaultTranslationsDir = "translations"
)

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "YOLODET_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// resolveIn returns name unchanged when it is absolute or exists relative to the working
// directory, and dir/name otherwise.
func resolveIn(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(dir, name)
}

// ResolveModelPath resolves a model file name against the models directory.
func ResolveModelPath(modelsDir, name string) string {
	if name == "" {
		name = DefaultModel
	}
	return resolveIn(GetModelsDir(modelsDir), name)
}

// ResolveTranslationPath resolves a translation file name against translationsDir.
func ResolveTranslationPath(translationsDir, name string) string {
	if translationsDir == "" {
		translationsDir = DefaultTranslationsDir
	}
	return resolveIn(translationsDir, name)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	fi, err := os.Stat(modelPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	if err != nil {
		return fmt.Errorf("model file not accessible: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}

// ModelInfo describes a model file found on disk.
type ModelInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// ListAvailableModels returns the .onnx files in the models directory, sorted by name.
func ListAvailableModels(modelsDir string) ([]ModelInfo, error) {
	dir := GetModelsDir(modelsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}
	out := make([]ModelInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".onnx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ModelInfo{Name: e.Name(), Path: filepath.Join(dir, e.Name()), SizeBytes: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
