// Package testutil provides helpers shared by package tests: a scriptable detector,
// synthetic images and on-disk fixtures.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// GetTestDataDir returns the path to the testdata directory.
func GetTestDataDir(t *testing.T) string {
	t.Helper()

	root, err := GetProjectRoot()
	require.NoError(t, err, "Failed to find project root")

	return filepath.Join(root, "testdata")
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// SampleTranslations is a small english/russian table covering SampleClasses.
const SampleTranslations = "english,russian,class_number\n" +
	"person,человек,0\n" +
	"bicycle,велосипед,1\n" +
	"car,автомобиль,2\n" +
	"dog,собака,3\n"

// SampleClasses are the class names matching SampleTranslations plus one untranslated class.
var SampleClasses = []string{"person", "bicycle", "car", "dog", "zebra"}

// WriteTranslationCSV writes rows (without header) as an english/russian table.
func WriteTranslationCSV(t *testing.T, dir string, rows map[string]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("english,russian\n")
	for src, dst := range rows {
		fmt.Fprintf(&b, "%s,%s\n", src, dst)
	}
	return WriteFile(t, dir, "translations.csv", b.String())
}
