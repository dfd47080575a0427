package pipeline

import (
	"encoding/base64"
	"errors"
	"image"

	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// EncodeJPEG encodes img as JPEG at quality (utils.DefaultJPEGQuality when out of range).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	return utils.EncodeJPEG(img, quality)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	return utils.EncodePNG(img)
}

// EncodeBase64JPEG encodes img once and returns the base64 text of that same buffer.
func EncodeBase64JPEG(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("jpeg encoder produced no data")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
