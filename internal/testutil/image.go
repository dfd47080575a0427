package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestImage returns a solid image.
func CreateTestImage(width, height int, backgroundColor color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	u := image.NewUniform(backgroundColor)
	for y := range height {
		for x := range width {
			img.Set(x, y, u.At(x, y))
		}
	}
	return img
}

// CreateGradientImage returns an image with a deterministic colour gradient.
func CreateGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(1, width-1)),
				G: uint8(y * 255 / max(1, height-1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// PNGBytes encodes img as PNG.
func PNGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// JPEGBytes encodes img as JPEG at quality 90.
func JPEGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// SaveImage writes img as PNG to path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, PNGBytes(t, img), 0o600))
}

// CompareImages reports whether two images have the same size and every channel
// differs by at most tolerance (0..1 of full scale).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Dx() != b2.Dx() || b1.Dy() != b2.Dy() {
		return false
	}
	limit := tolerance * 0xffff
	for y := range b1.Dy() {
		for x := range b1.Dx() {
			r1, g1, bl1, a1 := img1.At(b1.Min.X+x, b1.Min.Y+y).RGBA()
			r2, g2, bl2, a2 := img2.At(b2.Min.X+x, b2.Min.Y+y).RGBA()
			for _, d := range [4]float64{
				float64(r1) - float64(r2), float64(g1) - float64(g2),
				float64(bl1) - float64(bl2), float64(a1) - float64(a2),
			} {
				if math.Abs(d) > limit {
					return false
				}
			}
		}
	}
	return true
}
