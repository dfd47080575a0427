package cmd

import (
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yolodet/internal/app"
	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/testutil"
)

// withFakeDetector makes openApp use a scripted detector.
func withFakeDetector(t *testing.T, det *testutil.FakeDetector) {
	t.Helper()
	old := openApp
	openApp = func(cfg *config.Config) (*app.AppContext, error) {
		return app.NewWithDetector(cfg, det)
	}
	t.Cleanup(func() { openApp = old })
}

func writeScene(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "scene.png")
	testutil.SaveImage(t, testutil.CreateTestImage(120, 80, color.White), path)
	return path
}

func TestAnnotateJSON(t *testing.T) {
	dir := isolate(t)
	withFakeDetector(t, testutil.NewFakeDetector(testutil.Box(10, 10, 60, 50, 0.9, 3)))
	translations := testutil.WriteFile(t, dir, "coco.csv", testutil.SampleTranslations)
	scene := writeScene(t, dir)

	out, err := execute(t, "annotate", scene, "--language", "ru", "--translations", translations)
	require.NoError(t, err)

	var files []annotatedFile
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Equal(t, scene, files[0].File)
	require.Len(t, files[0].Result.Detections, 1)
	assert.Equal(t, "собака", files[0].Result.Detections[0].Label)

	want := filepath.Join(dir, "scene_annotated.jpg")
	assert.Equal(t, want, files[0].Annotated)
	assert.True(t, testutil.FileExists(want))
}

func TestAnnotateCSVAndOutputDir(t *testing.T) {
	dir := isolate(t)
	withFakeDetector(t, testutil.NewFakeDetector(testutil.Box(10, 10, 60, 50, 0.9, 3)))
	scene := writeScene(t, dir)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "annotate", scene, "--format", "csv", "--output-dir", outDir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "file,label,label_en"))
	assert.True(t, strings.HasPrefix(lines[1], scene+",dog,dog,3,"))
	assert.True(t, testutil.FileExists(filepath.Join(outDir, "scene_annotated.jpg")))
}

func TestAnnotateTextWithoutImage(t *testing.T) {
	dir := isolate(t)
	det := testutil.NewFakeDetector(testutil.Box(10, 10, 60, 50, 0.9, 3))
	withFakeDetector(t, det)
	scene := writeScene(t, dir)

	out, err := execute(t, "annotate", scene, "--format", "text", "--no-image", "--confidence", "0.25")
	require.NoError(t, err)
	assert.Contains(t, out, "scene.png: 1 detection(s)")
	assert.Contains(t, out, "dog 0.90")
	assert.InDelta(t, 0.25, det.LastConfidence(), 1e-9)

	_, statErr := os.Stat(filepath.Join(dir, "scene_annotated.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAnnotateErrors(t *testing.T) {
	dir := isolate(t)
	withFakeDetector(t, testutil.NewFakeDetector())
	scene := writeScene(t, dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", []string{"annotate"}, "requires at least 1 arg"},
		{"bad format", []string{"annotate", scene, "--format", "xml"}, "unsupported output format"},
		{"bad confidence", []string{"annotate", scene, "--confidence", "2"}, "between 0 and 1"},
		{"unsupported file", []string{"annotate", filepath.Join(dir, "notes.txt")}, "unsupported image file"},
		{"missing file", []string{"annotate", filepath.Join(dir, "missing.png")}, "failed to load"},
		{"bad language", []string{"annotate", scene, "--language", "fr"}, "unsupported language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAnnotateWithoutModel(t *testing.T) {
	dir := isolate(t)
	scene := writeScene(t, dir)

	_, err := execute(t, "annotate", scene, "--model", filepath.Join(dir, "missing.onnx"))
	require.Error(t, err)
}

func TestAnnotatedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "a_annotated.jpg"), annotatedPath(filepath.Join("in", "a.png"), ""))
	assert.Equal(t, filepath.Join("out", "a.b_annotated.jpg"), annotatedPath("a.b.webp", "out"))
}
