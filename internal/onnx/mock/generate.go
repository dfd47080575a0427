// Package mock builds synthetic detection head outputs for tests.
package mock

// Candidate is one synthetic box in model input coordinates.
type Candidate struct {
	CX, CY, W, H float32
	ClassID      int
	Score        float32
}

// Head is a synthetic detection head output.
type Head struct {
	Data  []float32
	Shape []int64
}

// NewYOLOHead lays out candidates as a YOLOv8-style head with numClasses scores.
// Unused anchors up to anchors are left at zero score. With transposed set the shape
// is [1, anchors, 4+nc], otherwise [1, 4+nc, anchors].
func NewYOLOHead(candidates []Candidate, numClasses, anchors int, transposed bool) Head {
	if anchors < len(candidates) {
		anchors = len(candidates)
	}
	if numClasses <= 0 || anchors == 0 {
		return Head{Shape: []int64{}}
	}
	features := 4 + numClasses
	data := make([]float32, features*anchors)
	set := func(a, f int, v float32) {
		if transposed {
			data[a*features+f] = v
			return
		}
		data[f*anchors+a] = v
	}
	for a, c := range candidates {
		set(a, 0, c.CX)
		set(a, 1, c.CY)
		set(a, 2, c.W)
		set(a, 3, c.H)
		if c.ClassID >= 0 && c.ClassID < numClasses {
			set(a, 4+c.ClassID, clamp01(c.Score))
		}
	}
	shape := []int64{1, int64(features), int64(anchors)}
	if transposed {
		shape = []int64{1, int64(anchors), int64(features)}
	}
	return Head{Data: data, Shape: shape}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
