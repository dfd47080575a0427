package translate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Columns names the CSV header fields read by LoadTable.
type Columns struct {
	Source      string `mapstructure:"source" yaml:"source" json:"source"`
	Target      string `mapstructure:"target" yaml:"target" json:"target"`
	ClassNumber string `mapstructure:"class_number" yaml:"class_number" json:"class_number"`
}

// DefaultColumns returns the header layout of the bundled translation files.
func DefaultColumns() Columns {
	return Columns{Source: "english", Target: "russian", ClassNumber: "class_number"}
}

// Entry is one row of a translation table.
type Entry struct {
	Target      string `json:"target"`
	ClassNumber int    `json:"class_number"`
}

// Table maps source-language labels to their translations. It is read-only after loading.
type Table struct {
	entries map[string]Entry
	path    string
}

// NewTable builds a table from an in-memory map. Keys and targets are NFC-normalised.
func NewTable(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for k, v := range entries {
		v.Target = norm.NFC.String(v.Target)
		t.entries[norm.NFC.String(k)] = v
	}
	return t
}

// Lookup returns the entry for a source label.
func (t *Table) Lookup(label string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[norm.NFC.String(label)]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Path returns the file the table was loaded from, if any.
func (t *Table) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// LoadTable reads a CSV translation file. The first row must be a header containing
// the configured column names; other columns are ignored.
func LoadTable(path string, cols Columns) (*Table, error) {
	if path == "" {
		return nil, errors.New("translation file path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: translation file path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open translation file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing translation file: %v\n", err)
		}
	}()

	t, err := ReadTable(f, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.path = path
	return t, nil
}

// ReadTable parses CSV translation data from r.
func ReadTable(r io.Reader, cols Columns) (*Table, error) {
	if cols.Source == "" || cols.Target == "" {
		cols = DefaultColumns()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("translation file is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	srcIdx, tgtIdx, numIdx := -1, -1, -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		switch strings.ToLower(h) {
		case strings.ToLower(cols.Source):
			srcIdx = i
		case strings.ToLower(cols.Target):
			tgtIdx = i
		case strings.ToLower(cols.ClassNumber):
			numIdx = i
		}
	}
	if srcIdx < 0 || tgtIdx < 0 {
		return nil, fmt.Errorf("header must contain %q and %q columns", cols.Source, cols.Target)
	}

	t := &Table{entries: make(map[string]Entry)}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if srcIdx >= len(rec) || tgtIdx >= len(rec) {
			continue
		}
		key := norm.NFC.String(strings.TrimSpace(rec[srcIdx]))
		if key == "" {
			continue
		}
		// first row wins on duplicate keys
		if _, dup := t.entries[key]; dup {
			continue
		}
		e := Entry{Target: norm.NFC.String(strings.TrimSpace(rec[tgtIdx])), ClassNumber: -1}
		if numIdx >= 0 && numIdx < len(rec) {
			if n, err := strconv.Atoi(strings.TrimSpace(rec[numIdx])); err == nil {
				e.ClassNumber = n
			}
		}
		if e.Target == "" {
			continue
		}
		t.entries[key] = e
	}
	return t, nil
}
