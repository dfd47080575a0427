package detector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/yolodet/internal/detect"
)

// IoU returns the intersection-over-union of two boxes.
func IoU(a, b detect.Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)
	inter := detect.Box{X1: ix1, Y1: iy1, X2: ix2, Y2: iy2}.Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NonMaxSuppression greedily keeps the highest-confidence boxes and drops lower ones
// overlapping a kept box by more than iouThreshold. Unless agnostic is set only boxes
// of the same class suppress each other. The result is ordered by confidence.
func NonMaxSuppression(boxes []detect.RawBox, iouThreshold float64, agnostic bool) []detect.RawBox {
	if len(boxes) <= 1 {
		return boxes
	}

	indices := make([]int, len(boxes))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return boxes[indices[i]].Confidence > boxes[indices[j]].Confidence
	})

	suppressed := make([]bool, len(boxes))
	kept := make([]detect.RawBox, 0, len(boxes))
	for ai, a := range indices {
		if suppressed[a] {
			continue
		}
		kept = append(kept, boxes[a])
		for _, b := range indices[ai+1:] {
			if suppressed[b] {
				continue
			}
			if !agnostic && boxes[a].ClassID != boxes[b].ClassID {
				continue
			}
			if IoU(boxes[a].Box, boxes[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}
