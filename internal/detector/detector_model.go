package detector

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/yolodet/internal/models"
	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// ONNXConfig holds configuration for the ONNX YOLO backend.
type ONNXConfig struct {
	ModelPath     string         // Path to the exported YOLO model
	LibraryPath   string         // Explicit ONNX Runtime shared library (optional)
	InputSize     int            // Square input side used when the model input is dynamic (default: 640)
	IoUThreshold  float64        // NMS IoU threshold (default: 0.45)
	MaxDetections int            // Cap on boxes returned per image (default: 300)
	Agnostic      bool           // Suppress across classes
	NumThreads    int            // Number of CPU threads (default: 0 for auto)
	Classes       ClassList      // Class names; read from model metadata when empty
	GPU           onnx.GPUConfig // GPU acceleration configuration
}

// DefaultONNXConfig returns a default backend configuration.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		ModelPath:     models.ResolveModelPath("", models.DefaultModel),
		InputSize:     640,
		IoUThreshold:  0.45,
		MaxDetections: 300,
		GPU:           onnx.DefaultGPUConfig(),
	}
}

// validateConfig validates the backend configuration.
func validateConfig(config ONNXConfig) error {
	if config.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if config.InputSize < 32 {
		return fmt.Errorf("input size must be at least 32, got %d", config.InputSize)
	}
	if config.IoUThreshold < 0 || config.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold must be in [0,1], got %v", config.IoUThreshold)
	}
	if config.MaxDetections < 0 {
		return fmt.Errorf("max detections must be non-negative, got %d", config.MaxDetections)
	}
	if config.NumThreads < 0 {
		return fmt.Errorf("num threads must be non-negative, got %d", config.NumThreads)
	}
	return onnx.ValidateGPUConfig(config.GPU)
}

// validateModelFile checks if the model file exists.
func validateModelFile(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// validateModelInfo gets and validates model input/output information.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if err := checkIO(inputs, outputs); err != nil {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{}, err
	}
	return inputs[0], outputs[0], nil
}

// checkIO requires one 4D image input and one 3D detection head output.
func checkIO(inputs, outputs []onnxruntime_go.InputOutputInfo) error {
	if len(inputs) != 1 {
		return fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) < 1 {
		return errors.New("expected at least 1 output, got 0")
	}
	if n := len(inputs[0].Dimensions); n != 4 {
		return fmt.Errorf("expected 4D input tensor, got %dD", n)
	}
	if c := inputs[0].Dimensions[1]; c > 0 && c != 3 {
		return fmt.Errorf("expected 3 input channels, got %d", c)
	}
	if n := len(outputs[0].Dimensions); n != 3 {
		return fmt.Errorf("expected 3D output tensor, got %dD", n)
	}
	return nil
}

// inputSize returns the model's fixed input height and width, or fallback for dynamic axes.
func inputSize(dims onnxruntime_go.Shape, fallback int) (int, int) {
	h, w := fallback, fallback
	if len(dims) == 4 {
		if dims[2] > 0 {
			h = int(dims[2])
		}
		if dims[3] > 0 {
			w = int(dims[3])
		}
	}
	return h, w
}

// classesFromMetadata reads the exporter's "names" entry from the model metadata.
func classesFromMetadata(modelPath string) (ClassList, error) {
	meta, err := onnxruntime_go.GetModelMetadata(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer func() { _ = meta.Destroy() }()

	names, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil {
		return nil, fmt.Errorf("failed to look up class names: %w", err)
	}
	if !ok {
		return nil, errors.New("model metadata has no class names")
	}
	return ParseNamesMetadata(names)
}
