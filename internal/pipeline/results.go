package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/yolodet/internal/detect"
)

// ToJSON serializes a Result to pretty JSON. The annotated raster is not included.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText renders one line per detection in result order.
func ToPlainText(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	if len(res.Detections) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(res.Detections))
	for _, d := range res.Detections {
		label := d.Label
		if d.LabelSource != d.Label {
			label = fmt.Sprintf("%s (%s)", d.Label, d.LabelSource)
		}
		lines = append(lines, fmt.Sprintf("%s %.2f [%.0f, %.0f, %.0f, %.0f]",
			label, d.Confidence, d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]))
	}
	return strings.Join(lines, "\n"), nil
}

// CSVHeader is the header row written by ToCSV.
var CSVHeader = []string{"label", "label_en", "class_id", "confidence", "x1", "y1", "x2", "y2"}

// ToCSV exports detections as CSV with header.
func ToCSV(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return "", err
	}
	if err := w.WriteAll(CSVRecords(res)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CSVRecords returns one CSVHeader-shaped row per detection.
func CSVRecords(res *Result) [][]string {
	rows := make([][]string, 0, len(res.Detections))
	for _, d := range res.Detections {
		rows = append(rows, []string{
			d.Label,
			d.LabelSource,
			strconv.Itoa(d.ClassID),
			fmt.Sprintf("%.4f", d.Confidence),
			formatCoord(d.BBox[0]),
			formatCoord(d.BBox[1]),
			formatCoord(d.BBox[2]),
			formatCoord(d.BBox[3]),
		})
	}
	return rows
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func validateDetectionBox(d detect.Detection, imageWidth, imageHeight, index int) error {
	b := d.Box()
	if !b.Valid() {
		return fmt.Errorf("detection %d has invalid box %v", index, d.BBox)
	}
	const eps = 1e-6
	if b.X1 < -eps || b.Y1 < -eps || b.X2 > float64(imageWidth)+eps || b.Y2 > float64(imageHeight)+eps {
		return fmt.Errorf("detection %d box %v outside %dx%d image", index, d.BBox, imageWidth, imageHeight)
	}
	return nil
}

// ValidateResult checks that boxes fit the image, confidences are probabilities and
// detections are sorted by descending confidence.
func ValidateResult(res *Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	prev := math.Inf(1)
	for i, d := range res.Detections {
		if err := validateDetectionBox(d, res.Width, res.Height, i); err != nil {
			return err
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("detection %d confidence %v out of range", i, d.Confidence)
		}
		if d.Confidence > prev {
			return fmt.Errorf("detection %d is not sorted by confidence", i)
		}
		prev = d.Confidence
	}
	return nil
}
