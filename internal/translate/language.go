package translate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ErrUnsupportedLanguage is returned for language codes that are neither source nor target.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language is a canonical two-letter language code such as "en".
type Language string

// Languages holds the configured source (model label) and target (translated) languages.
type Languages struct {
	Source Language
	Target Language
}

// DefaultLanguages returns English labels translated to Russian.
func DefaultLanguages() Languages {
	return Languages{Source: "en", Target: "ru"}
}

// Supported returns the accepted language codes, source first.
func (l Languages) Supported() []string {
	return []string{string(l.Source), string(l.Target)}
}

// Parse canonicalises code and checks it against the configured pair.
// An empty code selects the source language.
func (l Languages) Parse(code string) (Language, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return l.Source, nil
	}
	base, err := baseOf(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	switch base {
	case l.Source, l.Target:
		return base, nil
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, code, strings.Join(l.Supported(), ", "))
}

// NewLanguages canonicalises a configured source/target pair.
func NewLanguages(source, target string) (Languages, error) {
	src, err := baseOf(source)
	if err != nil {
		return Languages{}, fmt.Errorf("invalid source language %q: %w", source, err)
	}
	tgt, err := baseOf(target)
	if err != nil {
		return Languages{}, fmt.Errorf("invalid target language %q: %w", target, err)
	}
	return Languages{Source: src, Target: tgt}, nil
}

func baseOf(code string) (Language, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return "", err
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("no base language for %q", code)
	}
	return Language(base.String()), nil
}
