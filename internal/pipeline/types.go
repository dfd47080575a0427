package pipeline

import (
	"image"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// Timing records stage durations of one Process call.
type Timing struct {
	InferenceNs int64 `json:"inference_ns"`
	RenderNs    int64 `json:"render_ns"`
	TotalNs     int64 `json:"total_ns"`
}

// Result is the outcome of running one image through the pipeline. Detections and
// Annotated are two projections of the same raw boxes.
type Result struct {
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Language   translate.Language `json:"language"`
	Confidence float64            `json:"confidence_threshold"`
	Detections []detect.Detection `json:"detections"`
	Skipped    int                `json:"skipped_boxes"`
	Annotated  *image.RGBA        `json:"-"`
	Timing     Timing             `json:"processing"`
}

// PDFResult holds results for every processed page of a PDF.
type PDFResult struct {
	TotalPages int             `json:"total_pages"`
	Pages      []PDFPageResult `json:"pages"`
	Processing struct {
		ExtractionNs int64 `json:"extraction_ns"`
		TotalNs      int64 `json:"total_ns"`
	} `json:"processing"`
}

// PDFPageResult holds results for the images on one page.
type PDFPageResult struct {
	PageNumber int       `json:"page"`
	Images     []*Result `json:"images"`
}
