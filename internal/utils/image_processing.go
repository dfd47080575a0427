package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/yolodet/internal/mempool"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// LetterboxFill is the padding colour used around letterboxed images.
var LetterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox describes how an image was fitted into a model input.
type Letterbox struct {
	Scale float64
	PadX  int
	PadY  int
}

// ToSource maps a point in letterboxed coordinates back to the source image.
func (l Letterbox) ToSource(x, y float64) (float64, float64) {
	if l.Scale == 0 {
		return x, y
	}
	return (x - float64(l.PadX)) / l.Scale, (y - float64(l.PadY)) / l.Scale
}

// LetterboxImage resizes img to fit targetWidth x targetHeight keeping the aspect ratio
// and centres it on a padded canvas.
func LetterboxImage(img image.Image, targetWidth, targetHeight int) (*image.NRGBA, Letterbox, error) {
	if img == nil {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: errors.New("input image is nil")}
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, Letterbox{}, &ImageProcessingError{
			Operation: "letterbox",
			Err:       fmt.Errorf("invalid target dimensions: %dx%d", targetWidth, targetHeight),
		}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: errors.New("image has no pixels")}
	}

	scale := math.Min(float64(targetWidth)/float64(w), float64(targetHeight)/float64(h))
	newW := max(1, int(math.Round(float64(w)*scale)))
	newH := max(1, int(math.Round(float64(h)*scale)))

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	canvas := imaging.New(targetWidth, targetHeight, LetterboxFill)
	lb := Letterbox{Scale: scale, PadX: (targetWidth - newW) / 2, PadY: (targetHeight - newH) / 2}
	return imaging.Paste(canvas, resized, image.Pt(lb.PadX, lb.PadY)), lb, nil
}

// NormalizeImagePooled converts img into an NCHW float tensor in [0,1], RGB channel order.
// The buffer comes from mempool and should be returned with mempool.PutFloat32.
func NormalizeImagePooled(img *image.NRGBA) ([]float32, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}
	plane := width * height
	data := mempool.GetFloat32(3 * plane)
	for y := range height {
		row := img.Pix[y*img.Stride:]
		for x := range width {
			o := x * 4
			idx := y*width + x
			data[idx] = float32(row[o]) / 255.0
			data[plane+idx] = float32(row[o+1]) / 255.0
			data[2*plane+idx] = float32(row[o+2]) / 255.0
		}
	}
	return data, nil
}
