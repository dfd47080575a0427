// Package translate maps model class labels to display labels in a requested language.
package translate

// Resolver resolves labels against a translation table for a language pair.
type Resolver struct {
	table *Table
	langs Languages
}

// NewResolver creates a resolver. A nil table behaves as an empty table.
func NewResolver(table *Table, langs Languages) *Resolver {
	return &Resolver{table: table, langs: langs}
}

// Resolve returns the display label for label in lang. Labels are passed through
// unchanged for the source language and for labels missing from the table.
func (r *Resolver) Resolve(label string, lang Language) string {
	if r == nil || lang == r.langs.Source {
		return label
	}
	e, ok := r.table.Lookup(label)
	if !ok {
		return label
	}
	return e.Target
}
