package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestClassListClassName(t *testing.T) {
	c := ClassList{"person", "car"}
	name, ok := c.ClassName(1)
	assert.True(t, ok)
	assert.Equal(t, "car", name)
	_, ok = c.ClassName(2)
	assert.False(t, ok)
	_, ok = c.ClassName(-1)
	assert.False(t, ok)
}

func TestLoadClassFile(t *testing.T) {
	p := writeFile(t, "classes.txt", "\uFEFFperson\n\n  car \r\ndog\n")
	c, err := LoadClassFile(p)
	require.NoError(t, err)
	assert.Equal(t, ClassList{"person", "car", "dog"}, c)

	_, err = LoadClassFile(writeFile(t, "empty.txt", "\n\n"))
	require.Error(t, err)
	_, err = LoadClassFile("")
	require.Error(t, err)
	_, err = LoadClassFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestLoadModelConfig(t *testing.T) {
	p := writeFile(t, "model.json", `{"architecture":"yolov8n","width":640,"height":640,"classes":["a","b"]}`)
	mc, err := LoadModelConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "yolov8n", mc.Architecture)
	assert.Equal(t, 640, mc.Width)
	assert.Equal(t, []string{"a", "b"}, mc.Classes)

	_, err = LoadModelConfig(writeFile(t, "bad.json", `{"width":`))
	require.Error(t, err)
	_, err = LoadModelConfig(writeFile(t, "neg.json", `{"width":-1}`))
	require.Error(t, err)
}

func TestParseNamesMetadata(t *testing.T) {
	c, err := ParseNamesMetadata(`{0: 'person', 1: "bicycle", 3: 'car'}`)
	require.NoError(t, err)
	assert.Equal(t, ClassList{"person", "bicycle", "2", "car"}, c)

	_, err = ParseNamesMetadata("{}")
	require.Error(t, err)
}

func TestCOCOClasses(t *testing.T) {
	assert.Len(t, COCOClasses, 80)
	assert.Equal(t, "person", COCOClasses[0])
	assert.Equal(t, "toothbrush", COCOClasses[79])
}
