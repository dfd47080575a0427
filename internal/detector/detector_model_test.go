package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/yolodet/internal/models"
	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yalue/onnxruntime_go"
)

func TestDefaultONNXConfig(t *testing.T) {
	config := DefaultONNXConfig()

	assert.Equal(t, models.DefaultModel, filepath.Base(config.ModelPath))
	assert.Equal(t, 640, config.InputSize)
	assert.InDelta(t, 0.45, config.IoUThreshold, 1e-9)
	assert.Equal(t, 300, config.MaxDetections)
	assert.False(t, config.Agnostic)
	assert.False(t, config.GPU.UseGPU)
	require.NoError(t, validateConfig(config))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ONNXConfig)
		wantErr bool
	}{
		{"defaults", func(*ONNXConfig) {}, false},
		{"empty model path", func(c *ONNXConfig) { c.ModelPath = "" }, true},
		{"input too small", func(c *ONNXConfig) { c.InputSize = 16 }, true},
		{"iou above one", func(c *ONNXConfig) { c.IoUThreshold = 1.5 }, true},
		{"iou negative", func(c *ONNXConfig) { c.IoUThreshold = -0.1 }, true},
		{"negative max detections", func(c *ONNXConfig) { c.MaxDetections = -1 }, true},
		{"negative threads", func(c *ONNXConfig) { c.NumThreads = -2 }, true},
		{"bad gpu device", func(c *ONNXConfig) { c.GPU = onnx.GPUConfig{UseGPU: true, DeviceID: -1} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultONNXConfig()
			tt.mutate(&c)
			err := validateConfig(c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateModelFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.onnx")
	require.Error(t, validateModelFile(p))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	require.NoError(t, validateModelFile(p))
}

func TestNewONNXDetectorMissingModel(t *testing.T) {
	c := DefaultONNXConfig()
	c.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err := NewONNXDetector(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestCheckIO(t *testing.T) {
	in := func(dims ...int64) onnxruntime_go.InputOutputInfo {
		return onnxruntime_go.InputOutputInfo{Name: "images", Dimensions: onnxruntime_go.NewShape(dims...)}
	}
	tests := []struct {
		name    string
		inputs  []onnxruntime_go.InputOutputInfo
		outputs []onnxruntime_go.InputOutputInfo
		wantErr bool
	}{
		{"yolov8", []onnxruntime_go.InputOutputInfo{in(1, 3, 640, 640)}, []onnxruntime_go.InputOutputInfo{in(1, 84, 8400)}, false},
		{"dynamic axes", []onnxruntime_go.InputOutputInfo{in(-1, 3, -1, -1)}, []onnxruntime_go.InputOutputInfo{in(-1, 84, -1)}, false},
		{"two inputs", []onnxruntime_go.InputOutputInfo{in(1, 3, 640, 640), in(1)}, []onnxruntime_go.InputOutputInfo{in(1, 84, 8400)}, true},
		{"no outputs", []onnxruntime_go.InputOutputInfo{in(1, 3, 640, 640)}, nil, true},
		{"3D input", []onnxruntime_go.InputOutputInfo{in(3, 640, 640)}, []onnxruntime_go.InputOutputInfo{in(1, 84, 8400)}, true},
		{"grey input", []onnxruntime_go.InputOutputInfo{in(1, 1, 640, 640)}, []onnxruntime_go.InputOutputInfo{in(1, 84, 8400)}, true},
		{"4D output", []onnxruntime_go.InputOutputInfo{in(1, 3, 640, 640)}, []onnxruntime_go.InputOutputInfo{in(1, 1, 84, 8400)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkIO(tt.inputs, tt.outputs)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInputSize(t *testing.T) {
	h, w := inputSize(onnxruntime_go.NewShape(1, 3, 480, 640), 320)
	assert.Equal(t, 480, h)
	assert.Equal(t, 640, w)

	h, w = inputSize(onnxruntime_go.NewShape(1, 3, -1, -1), 320)
	assert.Equal(t, 320, h)
	assert.Equal(t, 320, w)

	h, w = inputSize(nil, 640)
	assert.Equal(t, 640, h)
	assert.Equal(t, 640, w)
}
