// Package render draws detection boxes and translated labels onto a copy of an image.
package render

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/fogleman/gg"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/fonts"
	"github.com/MeKo-Tech/yolodet/internal/layout"
	"github.com/MeKo-Tech/yolodet/internal/palette"
	"github.com/MeKo-Tech/yolodet/internal/translate"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// Options controls annotation appearance.
type Options struct {
	Layout              layout.Config
	BrightnessThreshold float64
}

// DefaultOptions returns the stock annotation appearance.
func DefaultOptions() Options {
	return Options{Layout: layout.DefaultConfig(), BrightnessThreshold: palette.DefaultBrightnessThreshold}
}

// Renderer annotates images. It holds only immutable collaborators and is safe for
// concurrent use.
type Renderer struct {
	opts    Options
	fonts   *fonts.Provider
	labeler *detect.Labeler
}

// New creates a Renderer. A nil font provider uses the builtin bitmap face.
func New(opts Options, provider *fonts.Provider, labeler *detect.Labeler) *Renderer {
	if provider == nil {
		provider = fonts.Builtin()
	}
	return &Renderer{opts: opts, fonts: provider, labeler: labeler}
}

// Options returns the renderer configuration.
func (r *Renderer) Options() Options { return r.opts }

// FontName returns the resolved label font.
func (r *Renderer) FontName() string { return r.fonts.Name() }

// LabelText formats the text drawn for one box.
func LabelText(label string, confidence float64) string {
	return fmt.Sprintf("%s %.2f", label, confidence)
}

// Render draws every valid raw box onto a fresh copy of img and returns it. Boxes are
// drawn in model output order; box i takes its label from the detection with Index i
// and falls back to resolving the label itself when no such detection exists.
func (r *Renderer) Render(img image.Image, raw []detect.RawBox, detections []detect.Detection, lang translate.Language) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := utils.CloneRGBA(img)
	if len(raw) == 0 {
		return dst
	}

	width, height := dst.Bounds().Dx(), dst.Bounds().Dy()
	lc := r.opts.Layout
	fontSize := lc.FontSize(height)
	thickness := lc.LineThickness(height)

	face := r.fonts.Face(float64(fontSize))
	measurer := fonts.Measurer{Face: face}
	ascent := fonts.Ascent(face)

	dc := gg.NewContextForRGBA(dst)
	dc.SetFontFace(face)

	byIndex := detect.ByIndex(detections)

	estimated := 0
	for i, rb := range raw {
		if !rb.Valid() {
			continue
		}
		var label string
		if d, ok := byIndex[i]; ok {
			label = d.Label
		} else {
			label, _ = r.labeler.Label(rb.ClassID, lang)
		}

		bg := palette.ColorForClass(rb.ClassID)
		fg := palette.ContrastTextColor(bg, r.opts.BrightnessThreshold)
		box := rb.Box.Rect()
		utils.DrawRect(dst, box, bg, thickness)

		text := LabelText(label, rb.Confidence)
		p := layout.PlaceLabel(box, text, measurer, fontSize, lc.TextPadding, lc.TextOffset, width)
		if p.Estimated {
			estimated++
		}

		bgRect := p.Background
		dc.SetColor(bg)
		dc.DrawRectangle(float64(bgRect.Min.X), float64(bgRect.Min.Y), float64(bgRect.Dx()), float64(bgRect.Dy()))
		dc.Fill()

		dc.SetColor(fg)
		dc.DrawString(text, float64(p.Text.X), float64(p.Text.Y+ascent))
	}
	if estimated > 0 {
		slog.Debug("Label sizes estimated", "count", estimated, "font", r.fonts.Name())
	}
	return dst
}
