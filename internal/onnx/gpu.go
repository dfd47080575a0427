package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// LibraryPathEnv overrides shared library discovery when set.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GPUConfig holds configuration for CUDA acceleration.
type GPUConfig struct {
	UseGPU              bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DeviceID            int    `mapstructure:"device" yaml:"device" json:"device"`
	GPUMemLimit         uint64 `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
	ArenaExtendStrategy string `mapstructure:"arena_extend_strategy" yaml:"arena_extend_strategy" json:"arena_extend_strategy"`
	CUDNNConvAlgoSearch string `mapstructure:"cudnn_conv_algo_search" yaml:"cudnn_conv_algo_search" json:"cudnn_conv_algo_search"`
}

// DefaultGPUConfig returns CPU-only defaults with sensible CUDA settings for when GPU is enabled.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		UseGPU:              false,
		DeviceID:            0,
		GPUMemLimit:         0,
		ArenaExtendStrategy: "kNextPowerOfTwo",
		CUDNNConvAlgoSearch: "DEFAULT",
	}
}

// ConfigureSessionForGPU appends the CUDA execution provider when GPU use is enabled.
func ConfigureSessionForGPU(sessionOptions *onnxruntime_go.SessionOptions, gpuConfig GPUConfig) error {
	if !gpuConfig.UseGPU {
		return nil
	}

	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if destroyErr := cudaOpts.Destroy(); destroyErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to destroy CUDA provider options: %v\n", destroyErr)
		}
	}()

	settings := map[string]string{
		"device_id":                 strconv.Itoa(gpuConfig.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if gpuConfig.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(gpuConfig.GPUMemLimit, 10)
	}
	if gpuConfig.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = gpuConfig.ArenaExtendStrategy
	}
	if gpuConfig.CUDNNConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = gpuConfig.CUDNNConvAlgoSearch
	}

	if err := cudaOpts.Update(settings); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// ValidateGPUConfig checks if the GPU configuration is valid.
func ValidateGPUConfig(config GPUConfig) error {
	if !config.UseGPU {
		return nil
	}
	if config.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", config.DeviceID)
	}
	switch config.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
	default:
		return fmt.Errorf("invalid arena extend strategy: %s (must be 'kNextPowerOfTwo' or "+
			"'kSameAsRequested')", config.ArenaExtendStrategy)
	}
	switch config.CUDNNConvAlgoSearch {
	case "", "EXHAUSTIVE", "HEURISTIC", "DEFAULT":
	default:
		return fmt.Errorf("invalid CUDNN conv algo search: %s (must be 'EXHAUSTIVE', 'HEURISTIC', or "+
			"'DEFAULT')", config.CUDNNConvAlgoSearch)
	}
	return nil
}

// getSystemLibraryPaths returns system library paths to try, GPU builds first when useGPU is set.
func getSystemLibraryPaths(useGPU bool) []string {
	cpu := []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	if useGPU {
		return append([]string{"/opt/onnxruntime/gpu/lib/libonnxruntime.so"}, cpu...)
	}
	return cpu
}

// findProjectRoot walks up from the working directory to the directory holding go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	projectRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", errors.New("could not find project root")
		}
		projectRoot = parent
	}
}

// getLibraryName returns the appropriate library filename for the current OS.
func getLibraryName() (string, error) {
	switch runtime.GOOS {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// LibraryCandidates lists shared library locations in probing order.
func LibraryCandidates(explicit string, useGPU bool) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		out = append(out, env)
	}
	out = append(out, getSystemLibraryPaths(useGPU)...)

	libName, err := getLibraryName()
	if err != nil {
		return out
	}
	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			out = append(out, filepath.Join(root, "onnxruntime", "gpu", "lib", libName))
		}
		out = append(out, filepath.Join(root, "onnxruntime", "lib", libName))
	}
	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), libName))
	}
	return out
}

// ResolveLibraryPath returns the first existing shared library candidate.
func ResolveLibraryPath(explicit string, useGPU bool) (string, error) {
	candidates := LibraryCandidates(explicit, useGPU)
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	if explicit != "" {
		return "", fmt.Errorf("ONNX Runtime library not found at %s", explicit)
	}
	return "", fmt.Errorf("ONNX Runtime library not found (tried %d locations, set %s)", len(candidates), LibraryPathEnv)
}

// SetONNXLibraryPath resolves the shared library and registers it with the runtime.
func SetONNXLibraryPath(explicit string, useGPU bool) (string, error) {
	path, err := ResolveLibraryPath(explicit, useGPU)
	if err != nil {
		return "", err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	return path, nil
}
