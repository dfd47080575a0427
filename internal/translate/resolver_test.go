package translate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	tbl := NewTable(map[string]Entry{
		"dog":    {Target: "собака", ClassNumber: 16},
		"person": {Target: "человек", ClassNumber: 0},
	})
	return NewResolver(tbl, DefaultLanguages())
}

func TestResolve(t *testing.T) {
	r := testResolver()
	tests := []struct {
		name  string
		label string
		lang  Language
		want  string
	}{
		{"source language passthrough", "dog", "en", "dog"},
		{"translated", "dog", "ru", "собака"},
		{"unknown label passthrough", "unknown_xyz", "ru", "unknown_xyz"},
		{"numeric fallback label", "42", "ru", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.label, tt.lang))
		})
	}
}

func TestResolveNilTable(t *testing.T) {
	r := NewResolver(nil, DefaultLanguages())
	assert.Equal(t, "dog", r.Resolve("dog", "ru"))

	var nilResolver *Resolver
	assert.Equal(t, "dog", nilResolver.Resolve("dog", "ru"))
}

func TestLanguagesParse(t *testing.T) {
	langs := DefaultLanguages()
	tests := []struct {
		code    string
		want    Language
		wantErr bool
	}{
		{"", "en", false},
		{"en", "en", false},
		{"EN", "en", false},
		{"en-US", "en", false},
		{"ru", "ru", false},
		{"ru-RU", "ru", false},
		{"de", "", true},
		{"not a language", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := langs.Parse(tt.code)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLanguages(t *testing.T) {
	l, err := NewLanguages("EN", "de-DE")
	require.NoError(t, err)
	assert.Equal(t, Languages{Source: "en", Target: "de"}, l)
	assert.Equal(t, []string{"en", "de"}, l.Supported())

	_, err = NewLanguages("!!", "ru")
	require.Error(t, err)
}
