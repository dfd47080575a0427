package onnx

import (
	"errors"
	"fmt"
)

// Tensor represents a simple float32 tensor prepared for ONNX input.
// Data layout is row-major, with NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64 // e.g., [N, C, H, W]
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
// data must be length C*H*W in NCHW order.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	shape := []int64{1, int64(c), int64(h), int64(w)}
	return Tensor{Data: data, Shape: shape}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks data length matches the provided NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	expected := int(n * c * h * w)
	if len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// HeadLayout describes a YOLO detection head output of shape [1, 4+nc, N]
// or its transpose [1, N, 4+nc].
type HeadLayout struct {
	Features   int  // 4 box coordinates plus one score per class
	Anchors    int  // number of candidate boxes
	Transposed bool // true for [1, N, 4+nc]
}

// Classes returns the number of class scores per candidate.
func (h HeadLayout) Classes() int { return h.Features - 4 }

// At returns feature f of anchor a from data laid out according to h.
func (h HeadLayout) At(data []float32, a, f int) float32 {
	if h.Transposed {
		return data[a*h.Features+f]
	}
	return data[f*h.Anchors+a]
}

// ParseHeadLayout interprets a detection head shape. When numClasses is known it
// disambiguates the orientation; otherwise the smaller axis is taken as features.
func ParseHeadLayout(shape []int64, numClasses int) (HeadLayout, error) {
	if len(shape) != 3 {
		return HeadLayout{}, fmt.Errorf("expected 3D detection output, got %dD %v", len(shape), shape)
	}
	if shape[0] != 1 {
		return HeadLayout{}, fmt.Errorf("expected batch size 1, got %d", shape[0])
	}
	a, b := int(shape[1]), int(shape[2])
	if a <= 4 && b <= 4 {
		return HeadLayout{}, fmt.Errorf("detection output too small: %v", shape)
	}
	switch {
	case numClasses > 0 && a == numClasses+4:
		return HeadLayout{Features: a, Anchors: b}, nil
	case numClasses > 0 && b == numClasses+4:
		return HeadLayout{Features: b, Anchors: a, Transposed: true}, nil
	case a <= b:
		return HeadLayout{Features: a, Anchors: b}, nil
	default:
		return HeadLayout{Features: b, Anchors: a, Transposed: true}, nil
	}
}
