package utils

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yolodet/internal/mempool"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	FillRect(img, img.Bounds(), c)
	return img
}

func TestLetterboxImage(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantScale  float64
		wantPadX   int
		wantPadY   int
		targetSize int
	}{
		{"wide", 1280, 640, 0.5, 0, 160, 640},
		{"tall", 320, 640, 1.0, 160, 0, 640},
		{"square upscale", 100, 100, 6.4, 0, 0, 640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := solid(tt.w, tt.h, color.RGBA{R: 200, A: 255})
			out, lb, err := LetterboxImage(img, tt.targetSize, tt.targetSize)
			require.NoError(t, err)
			assert.Equal(t, tt.targetSize, out.Bounds().Dx())
			assert.Equal(t, tt.targetSize, out.Bounds().Dy())
			assert.InDelta(t, tt.wantScale, lb.Scale, 1e-9)
			assert.Equal(t, tt.wantPadX, lb.PadX)
			assert.Equal(t, tt.wantPadY, lb.PadY)
		})
	}
}

func TestLetterboxPadding(t *testing.T) {
	img := solid(200, 100, color.RGBA{R: 255, A: 255})
	out, lb, err := LetterboxImage(img, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, lb.PadY)

	assert.Equal(t, LetterboxFill, out.NRGBAAt(50, 5))
	assert.Equal(t, uint8(255), out.NRGBAAt(50, 50).R)
}

func TestLetterboxToSource(t *testing.T) {
	lb := Letterbox{Scale: 0.5, PadX: 0, PadY: 160}
	x, y := lb.ToSource(100, 260)
	assert.InDelta(t, 200, x, 1e-9)
	assert.InDelta(t, 200, y, 1e-9)

	x, y = Letterbox{}.ToSource(3, 4)
	assert.InDelta(t, 3, x, 1e-9)
	assert.InDelta(t, 4, y, 1e-9)
}

func TestLetterboxErrors(t *testing.T) {
	_, _, err := LetterboxImage(nil, 10, 10)
	require.Error(t, err)
	var ipe *ImageProcessingError
	assert.True(t, errors.As(err, &ipe))
	assert.Equal(t, "letterbox", ipe.Operation)

	_, _, err = LetterboxImage(solid(4, 4, color.Black), 0, 10)
	require.Error(t, err)
}

func TestNormalizeImagePooled(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 102, B: 255, A: 255})

	data, err := NormalizeImagePooled(img)
	require.NoError(t, err)
	defer mempool.PutFloat32(data)

	require.Len(t, data, 6)
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 0.0, data[1], 1e-6)
	assert.InDelta(t, 0.0, data[2], 1e-6)
	assert.InDelta(t, 0.4, data[3], 1e-6)
	assert.InDelta(t, 0.2, data[4], 1e-6)
	assert.InDelta(t, 1.0, data[5], 1e-6)
}

func TestNormalizeImagePooledNil(t *testing.T) {
	_, err := NormalizeImagePooled(nil)
	require.Error(t, err)
}

func TestImageProcessingError(t *testing.T) {
	base := errors.New("boom")
	err := &ImageProcessingError{Operation: "decode", Err: base}
	assert.Equal(t, "image processing error in decode: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}
