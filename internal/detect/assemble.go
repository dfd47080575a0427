package detect

import (
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// Result is the assembled detection list.
type Result struct {
	Detections []Detection
	// Skipped counts raw boxes dropped as malformed.
	Skipped int
}

// Assemble labels every valid raw box and orders the result by confidence, highest first.
// Ties keep model output order. No confidence filtering happens here.
func Assemble(raw []RawBox, labeler *Labeler, lang translate.Language) Result {
	res := Result{Detections: make([]Detection, 0, len(raw))}
	for i, rb := range raw {
		if !rb.Valid() {
			res.Skipped++
			slog.Debug("Skipping malformed box", "index", i, "box", rb.Box, "confidence", rb.Confidence, "class_id", rb.ClassID)
			continue
		}
		label, source := labeler.Label(rb.ClassID, lang)
		res.Detections = append(res.Detections, Detection{
			Label:       label,
			LabelSource: source,
			Confidence:  rb.Confidence,
			BBox:        rb.Box.Array(),
			ClassID:     rb.ClassID,
			Index:       i,
		})
	}
	sort.SliceStable(res.Detections, func(a, b int) bool {
		return res.Detections[a].Confidence > res.Detections[b].Confidence
	})
	return res
}

// ByIndex maps raw-box indices to detections.
func ByIndex(detections []Detection) map[int]Detection {
	m := make(map[int]Detection, len(detections))
	for _, d := range detections {
		m[d.Index] = d
	}
	return m
}
