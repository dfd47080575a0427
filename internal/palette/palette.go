// Package palette assigns deterministic colours to detection classes.
package palette

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Size is the number of distinct class colours.
const Size = 40

// DefaultBrightnessThreshold separates light from dark backgrounds.
const DefaultBrightnessThreshold = 128.0

// RGB is an 8-bit colour triple.
type RGB struct {
	R, G, B uint8
}

// RGBA implements color.Color with full opacity.
func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}.RGBA()
}

// Hex returns the colour as #rrggbb.
func (c RGB) Hex() string {
	cf, _ := colorful.MakeColor(c)
	return cf.Hex()
}

// Luma returns the perceived brightness (ITU-R BT.601 weights) in [0,255].
func (c RGB) Luma() float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

var (
	// TextDark is used on light backgrounds.
	TextDark = RGB{4, 28, 85}
	// TextLight is used on dark backgrounds.
	TextLight = RGB{255, 255, 255}
)

var colors = [Size]RGB{
	{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {255, 255, 0}, {255, 0, 255},
	{0, 255, 255}, {255, 128, 0}, {128, 255, 0}, {0, 128, 255}, {255, 0, 128},
	{128, 0, 255}, {0, 255, 128}, {255, 128, 128}, {128, 255, 128}, {128, 128, 255},
	{255, 255, 128}, {255, 128, 255}, {128, 255, 255}, {192, 192, 192}, {128, 128, 128},
	{255, 165, 0}, {255, 140, 0}, {255, 99, 71}, {255, 69, 0}, {255, 215, 0},
	{218, 165, 32}, {210, 105, 30}, {139, 69, 19}, {160, 82, 45}, {205, 133, 63},
	{70, 130, 180}, {100, 149, 237}, {30, 144, 255}, {0, 191, 255}, {72, 209, 204},
	{32, 178, 170}, {0, 139, 139}, {0, 128, 128}, {47, 79, 79}, {95, 158, 160},
}

// Colors returns a copy of the palette in order.
func Colors() []RGB {
	out := make([]RGB, Size)
	copy(out, colors[:])
	return out
}

// HexColors returns the palette as #rrggbb strings.
func HexColors() []string {
	out := make([]string, Size)
	for i, c := range colors {
		out[i] = c.Hex()
	}
	return out
}

// ColorForClass returns the palette colour for a class index. Indices wrap modulo Size;
// negative indices are folded into range.
func ColorForClass(classID int) RGB {
	i := classID % Size
	if i < 0 {
		i += Size
	}
	return colors[i]
}

// ContrastTextColor picks a text colour legible on bg: dark navy when the background
// luma exceeds threshold, white otherwise.
func ContrastTextColor(bg RGB, threshold float64) RGB {
	if bg.Luma() > threshold {
		return TextDark
	}
	return TextLight
}
