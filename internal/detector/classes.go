package detector

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ClassList holds class names in index order.
type ClassList []string

// ClassName returns the name for classID.
func (c ClassList) ClassName(classID int) (string, bool) {
	if classID < 0 || classID >= len(c) {
		return "", false
	}
	return c[classID], true
}

// ModelConfig describes a model alongside its weights.
type ModelConfig struct {
	Architecture string   `json:"architecture"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Classes      []string `json:"classes"`
}

// LoadModelConfig reads a JSON model description.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: model config path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	var mc ModelConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("failed to parse model config %s: %w", path, err)
	}
	if mc.Width < 0 || mc.Height < 0 {
		return nil, fmt.Errorf("model config %s: negative input size", path)
	}
	return &mc, nil
}

// LoadClassFile reads one class name per non-empty line. A UTF-8 BOM is removed.
func LoadClassFile(path string) (ClassList, error) {
	if path == "" {
		return nil, errors.New("class file path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: class file path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open class file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing class file: %v\n", err)
		}
	}()

	var out ClassList
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading class file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("class file is empty: %s", path)
	}
	return out, nil
}

var namesEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'([^']*)'|"([^"]*)")`)

// ParseNamesMetadata parses the "names" metadata written by YOLO exporters,
// e.g. {0: 'person', 1: 'bicycle'}. Missing indices are filled with their number.
func ParseNamesMetadata(s string) (ClassList, error) {
	matches := namesEntry.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, errors.New("no class names in metadata")
	}
	byIdx := make(map[int]string, len(matches))
	keys := make([]int, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("bad class index %q: %w", m[1], err)
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		if _, dup := byIdx[idx]; !dup {
			keys = append(keys, idx)
		}
		byIdx[idx] = name
	}
	sort.Ints(keys)
	out := make(ClassList, keys[len(keys)-1]+1)
	for i := range out {
		if n, ok := byIdx[i]; ok {
			out[i] = n
		} else {
			out[i] = strconv.Itoa(i)
		}
	}
	return out, nil
}

// COCOClasses are the 80 labels of the COCO detection set, used when a model carries
// no class names of its own.
var COCOClasses = ClassList{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}
