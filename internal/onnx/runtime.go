// Package onnx holds ONNX Runtime glue shared by model backends: shared library
// discovery, CUDA options and tensor helpers.
package onnx

import (
	"fmt"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envPath string
)

// InitEnvironment locates the shared library and initialises the runtime once per process.
// It returns the library path in use.
func InitEnvironment(explicitLib string, useGPU bool) (string, error) {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return envPath, nil
	}
	path, err := SetONNXLibraryPath(explicitLib, useGPU)
	if err != nil {
		return "", fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return "", fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	envPath = path
	return path, nil
}

// RuntimeInfo describes a working ONNX Runtime installation.
type RuntimeInfo struct {
	LibraryPath string `json:"library_path"`
	Version     string `json:"version"`
}

// CheckRuntime verifies that the shared library loads and reports its version.
func CheckRuntime(explicitLib string, useGPU bool) (RuntimeInfo, error) {
	path, err := InitEnvironment(explicitLib, useGPU)
	if err != nil {
		return RuntimeInfo{}, err
	}
	return RuntimeInfo{LibraryPath: path, Version: onnxruntime_go.GetVersion()}, nil
}
