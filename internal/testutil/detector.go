package testutil

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/detector"
)

// FakeDetector returns scripted boxes. Like a real backend it drops boxes below the
// requested confidence.
type FakeDetector struct {
	Boxes     []detect.RawBox
	Err       error
	Names     detector.ClassList
	ModelName string
	Delay     time.Duration
	HealthErr error

	mu     sync.Mutex
	calls  atomic.Int32
	closed atomic.Bool
	last   float64
}

// NewFakeDetector returns a detector with SampleClasses that reports boxes.
func NewFakeDetector(boxes ...detect.RawBox) *FakeDetector {
	return &FakeDetector{Boxes: boxes, Names: SampleClasses, ModelName: "fake.onnx"}
}

// Detect implements detector.Detector.
func (f *FakeDetector) Detect(ctx context.Context, _ image.Image, confidence float64) ([]detect.RawBox, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = confidence
	f.mu.Unlock()

	if f.closed.Load() {
		return nil, detector.ErrClosed
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]detect.RawBox, 0, len(f.Boxes))
	for _, b := range f.Boxes {
		if b.Confidence >= confidence {
			out = append(out, b)
		}
	}
	return out, nil
}

// ClassName implements detector.Detector.
func (f *FakeDetector) ClassName(classID int) (string, bool) { return f.Names.ClassName(classID) }

// Classes implements detector.Detector.
func (f *FakeDetector) Classes() []string { return append([]string(nil), f.Names...) }

// Name implements detector.Detector.
func (f *FakeDetector) Name() string { return f.ModelName }

// CheckHealth implements detector.HealthChecker.
func (f *FakeDetector) CheckHealth(context.Context) error { return f.HealthErr }

// Close implements detector.Detector.
func (f *FakeDetector) Close() error {
	f.closed.Store(true)
	return nil
}

// Calls returns the number of Detect calls.
func (f *FakeDetector) Calls() int { return int(f.calls.Load()) }

// LastConfidence returns the threshold of the most recent Detect call.
func (f *FakeDetector) LastConfidence() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Closed reports whether Close was called.
func (f *FakeDetector) Closed() bool { return f.closed.Load() }

// Box is shorthand for a raw box.
func Box(x1, y1, x2, y2, confidence float64, classID int) detect.RawBox {
	return detect.RawBox{Box: detect.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: confidence, ClassID: classID}
}
