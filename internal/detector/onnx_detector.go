package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/mempool"
	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/MeKo-Tech/yolodet/internal/utils"
	"github.com/yalue/onnxruntime_go"
)

// ONNXDetector runs a YOLOv8-style export through ONNX Runtime.
// A session is not reentrant; wrap the detector with NewSerial when shared.
type ONNXDetector struct {
	config     ONNXConfig
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	inputH     int
	inputW     int
	classes    ClassList
	mu         sync.RWMutex
}

// NewONNXDetector loads the model and creates an inference session.
func NewONNXDetector(config ONNXConfig) (*ONNXDetector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if err := validateModelFile(config.ModelPath); err != nil {
		return nil, err
	}

	slog.Debug("Initializing ONNX detector",
		"model_path", config.ModelPath,
		"gpu_enabled", config.GPU.UseGPU,
		"input_size", config.InputSize,
		"iou_threshold", config.IoUThreshold)

	if _, err := onnx.InitEnvironment(config.LibraryPath, config.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := validateModelInfo(config.ModelPath)
	if err != nil {
		return nil, err
	}

	classes := config.Classes
	if len(classes) == 0 {
		classes, err = classesFromMetadata(config.ModelPath)
		if err != nil {
			slog.Warn("Falling back to COCO class names", "error", err)
			classes = COCOClasses
		}
	}

	session, err := createSession(config.ModelPath, inputInfo, outputInfo, config)
	if err != nil {
		return nil, err
	}

	h, w := inputSize(inputInfo.Dimensions, config.InputSize)
	d := &ONNXDetector{
		config:     config,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
		inputH:     h,
		inputW:     w,
		classes:    classes,
	}

	slog.Info("ONNX detector initialized",
		"model", d.Name(), "classes", len(classes), "input_width", w, "input_height", h)
	return d, nil
}

// Name returns the model file name.
func (d *ONNXDetector) Name() string {
	return filepath.Base(d.config.ModelPath)
}

// ClassName maps a class index to its name.
func (d *ONNXDetector) ClassName(classID int) (string, bool) {
	return d.classes.ClassName(classID)
}

// Classes returns a copy of the class names.
func (d *ONNXDetector) Classes() []string {
	out := make([]string, len(d.classes))
	copy(out, d.classes)
	return out
}

// GetConfig returns a copy of the detector's configuration.
func (d *ONNXDetector) GetConfig() ONNXConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Detect letterboxes img into the model input, runs the session and returns boxes at
// or above confidence after non-maximum suppression.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, confidence float64) ([]detect.RawBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, ErrClosed
	}

	boxed, lb, err := utils.LetterboxImage(img, d.inputW, d.inputH)
	if err != nil {
		return nil, fmt.Errorf("failed to letterbox image: %w", err)
	}
	data, err := utils.NormalizeImagePooled(boxed)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize image: %w", err)
	}
	defer mempool.PutFloat32(data)

	tensor, err := onnx.NewImageTensor(data, 3, d.inputH, d.inputW)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	out, shape, err := d.run(tensor)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	raw, err := decodeHead(out, shape, len(d.classes), confidence, lb, b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	kept := NonMaxSuppression(raw, d.config.IoUThreshold, d.config.Agnostic)
	if d.config.MaxDetections > 0 && len(kept) > d.config.MaxDetections {
		kept = kept[:d.config.MaxDetections]
	}
	slog.Debug("Detection complete", "candidates", len(raw), "kept", len(kept))
	return kept, nil
}

// run executes the session and copies the first output out of runtime memory.
func (d *ONNXDetector) run(tensor onnx.Tensor) ([]float32, []int64, error) {
	if err := onnx.VerifyImageTensor(tensor); err != nil {
		return nil, nil, fmt.Errorf("invalid tensor: %w", err)
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			slog.Warn("Error destroying input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := d.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Error destroying output tensor", "error", err)
		}
	}()

	floatTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	src := floatTensor.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	shape := []int64(floatTensor.GetShape())
	return data, append([]int64(nil), shape...), nil
}

// Close releases the session. The runtime environment stays initialised for the process.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy detector session", "error", err)
		}
		d.session = nil
	}
	return nil
}
