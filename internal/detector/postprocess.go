package detector

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// decodeHead converts a YOLO detection head into raw boxes in source-image coordinates.
// Candidates below confidence are dropped; no suppression is applied.
func decodeHead(data []float32, shape []int64, numClasses int, confidence float64,
	lb utils.Letterbox, srcW, srcH int,
) ([]detect.RawBox, error) {
	layout, err := onnx.ParseHeadLayout(shape, numClasses)
	if err != nil {
		return nil, err
	}
	if need := layout.Features * layout.Anchors; len(data) < need {
		return nil, fmt.Errorf("detection output has %d values, shape %v needs %d", len(data), shape, need)
	}

	nc := layout.Classes()
	out := make([]detect.RawBox, 0, 64)
	for a := range layout.Anchors {
		best, cls := float32(-1), -1
		for c := range nc {
			if s := layout.At(data, a, 4+c); s > best {
				best, cls = s, c
			}
		}
		if cls < 0 || float64(best) < confidence {
			continue
		}
		cx := float64(layout.At(data, a, 0))
		cy := float64(layout.At(data, a, 1))
		w := float64(layout.At(data, a, 2))
		h := float64(layout.At(data, a, 3))

		x1, y1 := lb.ToSource(cx-w/2, cy-h/2)
		x2, y2 := lb.ToSource(cx+w/2, cy+h/2)
		box := detect.Box{
			X1: clamp(x1, 0, float64(srcW)),
			Y1: clamp(y1, 0, float64(srcH)),
			X2: clamp(x2, 0, float64(srcW)),
			Y2: clamp(y2, 0, float64(srcH)),
		}
		out = append(out, detect.RawBox{Box: box, Confidence: float64(best), ClassID: cls})
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
