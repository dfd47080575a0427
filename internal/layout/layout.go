// Package layout derives annotation geometry from image size: stroke width, font size
// and label placement.
package layout

import (
	"errors"
	"image"
	"math"
	"unicode/utf8"
)

// DefaultReferenceHeight is the image height at which base sizes apply unscaled.
const DefaultReferenceHeight = 800

// ErrMeasurementUnavailable reports that text bounds could not be computed.
var ErrMeasurementUnavailable = errors.New("text measurement unavailable")

// Config holds the scaling constants for annotation geometry.
type Config struct {
	LineThicknessBase int `mapstructure:"line_thickness_base" yaml:"line_thickness_base" json:"line_thickness_base"`
	LineThicknessMin  int `mapstructure:"line_thickness_min" yaml:"line_thickness_min" json:"line_thickness_min"`
	LineThicknessMax  int `mapstructure:"line_thickness_max" yaml:"line_thickness_max" json:"line_thickness_max"`
	FontSizeBase      int `mapstructure:"font_size_base" yaml:"font_size_base" json:"font_size_base"`
	FontSizeMin       int `mapstructure:"font_size_min" yaml:"font_size_min" json:"font_size_min"`
	FontSizeMax       int `mapstructure:"font_size_max" yaml:"font_size_max" json:"font_size_max"`
	TextPadding       int `mapstructure:"text_padding" yaml:"text_padding" json:"text_padding"`
	TextOffset        int `mapstructure:"text_offset" yaml:"text_offset" json:"text_offset"`
	ReferenceHeight   int `mapstructure:"reference_height" yaml:"reference_height" json:"reference_height"`
}

// DefaultConfig returns the stock annotation geometry.
func DefaultConfig() Config {
	return Config{
		LineThicknessBase: 5,
		LineThicknessMin:  2,
		LineThicknessMax:  8,
		FontSizeBase:      30,
		FontSizeMin:       15,
		FontSizeMax:       60,
		TextPadding:       2,
		TextOffset:        1,
		ReferenceHeight:   DefaultReferenceHeight,
	}
}

// Validate checks that ranges are ordered and sizes positive.
func (c Config) Validate() error {
	if c.ReferenceHeight <= 0 {
		return errors.New("reference_height must be positive")
	}
	if c.FontSizeMin <= 0 || c.FontSizeMin > c.FontSizeMax {
		return errors.New("font_size_min must be positive and not exceed font_size_max")
	}
	if c.LineThicknessMin <= 0 || c.LineThicknessMin > c.LineThicknessMax {
		return errors.New("line_thickness_min must be positive and not exceed line_thickness_max")
	}
	if c.FontSizeBase <= 0 || c.LineThicknessBase <= 0 {
		return errors.New("font_size_base and line_thickness_base must be positive")
	}
	if c.TextPadding < 0 || c.TextOffset < 0 {
		return errors.New("text_padding and text_offset must not be negative")
	}
	return nil
}

// FontSize returns the label font size for an image of the given height.
func (c Config) FontSize(height int) int {
	return c.scale(c.FontSizeBase, c.FontSizeMin, c.FontSizeMax, height)
}

// LineThickness returns the box stroke width for an image of the given height.
func (c Config) LineThickness(height int) int {
	return c.scale(c.LineThicknessBase, c.LineThicknessMin, c.LineThicknessMax, height)
}

func (c Config) scale(base, lo, hi, height int) int {
	ref := c.ReferenceHeight
	if ref <= 0 {
		ref = DefaultReferenceHeight
	}
	if height < 0 {
		height = 0
	}
	v := int(math.Round(float64(base) * float64(height) / float64(ref)))
	// min first, then max
	v = max(v, lo)
	v = min(v, hi)
	return v
}

// Measurer reports the pixel extent of rendered text.
type Measurer interface {
	Measure(text string) (width, height int, err error)
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(text string) (int, int, error)

// Measure calls f.
func (f MeasureFunc) Measure(text string) (int, int, error) { return f(text) }

// Placement is the computed label geometry for one box.
type Placement struct {
	// Background is the filled label rectangle.
	Background image.Rectangle
	// Text is the top-left corner of the text.
	Text image.Point
	// TextWidth and TextHeight are the measured or estimated text extents.
	TextWidth  int
	TextHeight int
	// Inside is set when the label did not fit above the box.
	Inside bool
	// Estimated is set when measurement failed and the size was approximated.
	Estimated bool
}

// EstimateText approximates text extents as half the font size per rune by one font size.
func EstimateText(text string, fontSize int) (int, int) {
	return utf8.RuneCountInString(text) * fontSize / 2, fontSize
}

// PlaceLabel positions a label for box. The label goes above the box when it fits
// vertically and inside the top edge otherwise; the right edge is clamped to imageWidth.
func PlaceLabel(box image.Rectangle, text string, m Measurer, fontSize, padding, offset, imageWidth int) Placement {
	var p Placement
	tw, th, err := measure(m, text)
	if err != nil {
		tw, th = EstimateText(text, fontSize)
		p.Estimated = true
	}
	p.TextWidth, p.TextHeight = tw, th

	totalW := tw + 2*padding
	totalH := th + 2*padding
	x1, y1 := box.Min.X, box.Min.Y

	if y1-totalH-offset >= 0 {
		p.Background = image.Rect(x1, y1-totalH-offset, x1+totalW, y1)
		p.Text = image.Pt(x1+padding, y1-th-padding-offset)
	} else {
		p.Inside = true
		p.Background = image.Rect(x1, y1, x1+totalW, y1+totalH)
		p.Text = image.Pt(x1+padding, y1+padding)
	}

	if p.Background.Max.X > imageWidth {
		overflow := p.Background.Max.X - imageWidth
		p.Background.Min.X = max(0, p.Background.Min.X-overflow)
		p.Background.Max.X = imageWidth
		p.Text.X = p.Background.Min.X + padding
	}
	return p
}

func measure(m Measurer, text string) (int, int, error) {
	if m == nil {
		return 0, 0, ErrMeasurementUnavailable
	}
	w, h, err := m.Measure(text)
	if err != nil {
		return 0, 0, err
	}
	if text != "" && (w <= 0 || h <= 0) {
		return 0, 0, ErrMeasurementUnavailable
	}
	return w, h, nil
}
