// Package detect turns raw model boxes into labelled, confidence-ordered detections.
package detect

import (
	"image"
	"math"
)

// Box is an axis-aligned rectangle in input-image pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether all coordinates are finite and the box has positive area.
func (b Box) Valid() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Width returns X2-X1.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, zero for invalid boxes.
func (b Box) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect truncates the coordinates to integer pixels.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Array returns the coordinates as [x1, y1, x2, y2].
func (b Box) Array() [4]float64 { return [4]float64{b.X1, b.Y1, b.X2, b.Y2} }

// RawBox is one model output before labelling.
type RawBox struct {
	Box        Box
	Confidence float64
	ClassID    int
}

// Valid reports whether the geometry is valid, the confidence lies in [0,1] and the
// class index is non-negative.
func (r RawBox) Valid() bool {
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return false
	}
	return r.ClassID >= 0 && r.Box.Valid()
}

// Detection is a labelled object instance.
type Detection struct {
	Label       string     `json:"label"`
	LabelSource string     `json:"label_en"`
	Confidence  float64    `json:"confidence"`
	BBox        [4]float64 `json:"bbox"`
	ClassID     int        `json:"class_id"`
	// Index is the position of the originating raw box in the model output.
	Index int `json:"-"`
}

// Box returns the detection bounding box.
func (d Detection) Box() Box {
	return Box{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]}
}
