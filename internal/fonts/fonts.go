// Package fonts resolves the label font through an ordered list of strategies and hands
// out faces at any size.
package fonts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

// ErrFontNotFound is returned by a strategy that found no usable font.
var ErrFontNotFound = errors.New("font not found")

// BuiltinName names the fixed-size bitmap face used when nothing else loads.
const BuiltinName = "builtin:basicfont-7x13"

// EmbeddedName names the bundled Go Regular font.
const EmbeddedName = "embedded:goregular"

// Source is a resolved font. Font is nil for the fixed-size bitmap face.
type Source struct {
	Name string
	Path string
	Font *truetype.Font
}

// Strategy is one step of font resolution.
type Strategy struct {
	Name string
	Load func() (*Source, error)
}

// DefaultSearchDirs lists directories probed for a configured font file name.
var DefaultSearchDirs = []string{"fonts", "./fonts", ".", "/opt/render/project/src/fonts"}

// DefaultSystemFonts lists fallback font files tried after the configured font.
var DefaultSystemFonts = []string{
	"arial.ttf",
	"arialbd.ttf",
	"DejaVuSans.ttf",
	"DejaVuSans-Bold.ttf",
	"LiberationSans-Regular.ttf",
}

// DefaultSystemDirs lists platform font directories probed for fallback fonts.
var DefaultSystemDirs = []string{
	"/usr/share/fonts/truetype/dejavu",
	"/usr/share/fonts/truetype/liberation",
	"/usr/share/fonts/truetype/msttcorefonts",
	"/usr/share/fonts/TTF",
	"/usr/share/fonts/dejavu",
	"/Library/Fonts",
	"C:/Windows/Fonts",
}

// FileStrategy looks for file as given and inside each of dirs.
func FileStrategy(file string, dirs []string) Strategy {
	return Strategy{
		Name: "file:" + file,
		Load: func() (*Source, error) {
			if file == "" {
				return nil, ErrFontNotFound
			}
			for _, p := range candidates(file, dirs) {
				src, err := LoadFile(p)
				if err == nil {
					return src, nil
				}
				if !errors.Is(err, os.ErrNotExist) {
					slog.Debug("Font candidate rejected", "path", p, "error", err)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrFontNotFound, file)
		},
	}
}

// SystemStrategy tries each fallback font name in order across dirs.
func SystemStrategy(names, dirs []string) Strategy {
	return Strategy{
		Name: "system",
		Load: func() (*Source, error) {
			for _, n := range names {
				if src, err := FileStrategy(n, dirs).Load(); err == nil {
					return src, nil
				}
			}
			return nil, fmt.Errorf("%w: no system fallback font", ErrFontNotFound)
		},
	}
}

// EmbeddedStrategy parses the bundled Go Regular font.
func EmbeddedStrategy() Strategy {
	return Strategy{
		Name: EmbeddedName,
		Load: func() (*Source, error) {
			f, err := truetype.Parse(goregular.TTF)
			if err != nil {
				return nil, fmt.Errorf("failed to parse embedded font: %w", err)
			}
			return &Source{Name: EmbeddedName, Font: f}, nil
		},
	}
}

// DefaultStrategies returns the standard resolution order for a configured font file.
func DefaultStrategies(file string, searchDirs, fallbacks []string) []Strategy {
	if len(searchDirs) == 0 {
		searchDirs = DefaultSearchDirs
	}
	if len(fallbacks) == 0 {
		fallbacks = DefaultSystemFonts
	}
	sysDirs := append(append([]string{}, searchDirs...), DefaultSystemDirs...)
	return []Strategy{
		FileStrategy(file, searchDirs),
		SystemStrategy(fallbacks, sysDirs),
		EmbeddedStrategy(),
	}
}

// LoadFile reads and parses a TrueType font file.
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: font path comes from configuration
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Source{Name: filepath.Base(path), Path: path, Font: f}, nil
}

func candidates(file string, dirs []string) []string {
	out := []string{file}
	if filepath.IsAbs(file) {
		return out
	}
	seen := map[string]bool{filepath.Clean(file): true}
	for _, d := range dirs {
		p := filepath.Join(d, file)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Provider hands out faces of the resolved font. Faces must not be shared between
// goroutines; call Face per render.
type Provider struct {
	src *Source
}

// Resolve runs strategies in order and keeps the first success. When every strategy
// fails the provider falls back to the fixed-size bitmap face.
func Resolve(strategies ...Strategy) *Provider {
	for _, s := range strategies {
		src, err := s.Load()
		if err != nil {
			slog.Debug("Font strategy failed", "strategy", s.Name, "error", err)
			continue
		}
		slog.Info("Font resolved", "strategy", s.Name, "font", src.Name, "path", src.Path)
		return &Provider{src: src}
	}
	slog.Warn("No scalable font available, using builtin bitmap face")
	return Builtin()
}

// Builtin returns a provider backed only by the fixed-size bitmap face.
func Builtin() *Provider {
	return &Provider{src: &Source{Name: BuiltinName}}
}

// Name returns the resolved font name.
func (p *Provider) Name() string {
	if p == nil || p.src == nil {
		return BuiltinName
	}
	return p.src.Name
}

// Path returns the font file path, empty for embedded and builtin fonts.
func (p *Provider) Path() string {
	if p == nil || p.src == nil {
		return ""
	}
	return p.src.Path
}

// Scalable reports whether faces honour the requested size.
func (p *Provider) Scalable() bool {
	return p != nil && p.src != nil && p.src.Font != nil
}

// Face returns a new face at size pixels. The bitmap fallback ignores size.
func (p *Provider) Face(size float64) font.Face {
	if !p.Scalable() || size <= 0 {
		return basicfont.Face7x13
	}
	return truetype.NewFace(p.src.Font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Measurer measures text with a face.
type Measurer struct {
	Face font.Face
}

// Measure returns the advance width and the ascent-plus-descent height of text.
func (m Measurer) Measure(text string) (int, int, error) {
	if m.Face == nil {
		return 0, 0, ErrFontNotFound
	}
	if strings.TrimSpace(text) == "" {
		return 0, 0, nil
	}
	w := font.MeasureString(m.Face, text)
	metrics := m.Face.Metrics()
	return w.Ceil(), (metrics.Ascent + metrics.Descent).Ceil(), nil
}

// Ascent returns the face ascent in whole pixels.
func Ascent(face font.Face) int {
	return face.Metrics().Ascent.Ceil()
}
