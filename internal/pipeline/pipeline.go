// Package pipeline composes detection, assembly and rendering into one request path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/yolodet/internal/common"
	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/detector"
	"github.com/MeKo-Tech/yolodet/internal/fonts"
	"github.com/MeKo-Tech/yolodet/internal/render"
	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// Sentinel errors for invalid Process arguments.
var (
	ErrNilImage          = errors.New("image is nil")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	detector detector.Detector
	labeler  *detect.Labeler
	renderer *render.Renderer
}

// NewBuilder creates an empty pipeline builder.
func NewBuilder() *Builder { return &Builder{} }

// WithDetector sets the inference backend.
func (b *Builder) WithDetector(d detector.Detector) *Builder {
	b.detector = d
	return b
}

// WithLabeler sets the label resolver shared by assembly and rendering.
func (b *Builder) WithLabeler(l *detect.Labeler) *Builder {
	b.labeler = l
	return b
}

// WithRenderer sets the renderer. Without one, Build uses default options and the
// built-in font.
func (b *Builder) WithRenderer(r *render.Renderer) *Builder {
	b.renderer = r
	return b
}

// Build validates the collaborators and returns the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.detector == nil {
		return nil, errors.New("pipeline requires a detector")
	}
	labeler := b.labeler
	if labeler == nil {
		labeler = detect.NewLabeler(b.detector, nil)
	}
	renderer := b.renderer
	if renderer == nil {
		renderer = render.New(render.DefaultOptions(), fonts.Builtin(), labeler)
	}
	return &Pipeline{detector: b.detector, labeler: labeler, renderer: renderer}, nil
}

// Pipeline runs detect, assemble and render for one image at a time. It is safe for
// concurrent use when the detector is.
type Pipeline struct {
	detector detector.Detector
	labeler  *detect.Labeler
	renderer *render.Renderer
}

// Detector returns the inference backend.
func (p *Pipeline) Detector() detector.Detector { return p.detector }

// Labeler returns the label resolver.
func (p *Pipeline) Labeler() *detect.Labeler { return p.labeler }

// Renderer returns the renderer.
func (p *Pipeline) Renderer() *render.Renderer { return p.renderer }

// Process detects objects in img at the given confidence threshold and renders them
// with labels in lang.
func (p *Pipeline) Process(ctx context.Context, img image.Image, confidence float64, lang translate.Language) (*Result, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, confidence)
	}

	timer := common.NewTimer()

	raw, err := p.detector.Detect(ctx, img, confidence)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	inference := timer.Mark("inference")

	assembled := detect.Assemble(raw, p.labeler, lang)
	annotated := p.renderer.Render(img, raw, assembled.Detections, lang)
	rendering := timer.Mark("render")

	b := img.Bounds()
	res := &Result{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Language:   lang,
		Confidence: confidence,
		Detections: assembled.Detections,
		Skipped:    assembled.Skipped,
		Annotated:  annotated,
		Timing: Timing{
			InferenceNs: inference.Nanoseconds(),
			RenderNs:    rendering.Nanoseconds(),
			TotalNs:     timer.Total().Nanoseconds(),
		},
	}

	slog.Debug("Image processed",
		"width", res.Width, "height", res.Height,
		"raw_boxes", len(raw), "detections", len(res.Detections), "skipped", res.Skipped,
		"timing", timer.String())
	return res, nil
}
