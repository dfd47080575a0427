package detect

import (
	"strconv"

	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// ClassNamer maps class indices to source-language names.
type ClassNamer interface {
	ClassName(classID int) (string, bool)
}

// Labeler resolves display labels for class indices. Both the assembler and the
// renderer label through it so the two outputs agree.
type Labeler struct {
	Names    ClassNamer
	Resolver *translate.Resolver
}

// NewLabeler creates a Labeler.
func NewLabeler(names ClassNamer, resolver *translate.Resolver) *Labeler {
	return &Labeler{Names: names, Resolver: resolver}
}

// SourceLabel returns the model's name for classID, or the decimal id when unknown.
func (l *Labeler) SourceLabel(classID int) string {
	if l != nil && l.Names != nil {
		if name, ok := l.Names.ClassName(classID); ok {
			return name
		}
	}
	return strconv.Itoa(classID)
}

// Label returns the display label in lang and the source label.
func (l *Labeler) Label(classID int, lang translate.Language) (label, source string) {
	source = l.SourceLabel(classID)
	if l == nil {
		return source, source
	}
	return l.Resolver.Resolve(source, lang), source
}
