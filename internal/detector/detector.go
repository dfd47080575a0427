// Package detector provides object detection backends: a local ONNX Runtime YOLO model,
// a remote HTTP inference service and a serialising wrapper for non-reentrant backends.
package detector

import (
	"context"
	"errors"
	"image"

	"github.com/MeKo-Tech/yolodet/internal/detect"
)

// ErrClosed is returned by a detector after Close.
var ErrClosed = errors.New("detector closed")

// Detector runs object detection on an image.
type Detector interface {
	// Detect returns raw boxes whose confidence is at least confidence, in input-image
	// pixel coordinates.
	Detect(ctx context.Context, img image.Image, confidence float64) ([]detect.RawBox, error)
	// ClassName maps a class index to its source-language name.
	ClassName(classID int) (string, bool)
	// Classes returns all class names in index order.
	Classes() []string
	// Name identifies the loaded model.
	Name() string
	Close() error
}

// HealthChecker is implemented by backends that can probe a dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}
