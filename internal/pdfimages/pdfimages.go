// Package pdfimages extracts embedded raster images from PDF documents so that each page
// image can be run through the detection pipeline.
package pdfimages

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/MeKo-Tech/yolodet/internal/utils"
)

// ErrEncrypted is returned when a PDF needs a password that was not supplied or was wrong.
var ErrEncrypted = errors.New("pdf is encrypted")

// Options controls extraction.
type Options struct {
	Pages    string // page selection such as "1-3,5"; empty means all pages
	Password string // user or owner password for encrypted documents
	MaxPages int    // upper bound on returned pages; 0 means unlimited
}

// Page holds the images found on one PDF page.
type Page struct {
	Number int
	Images []image.Image
}

// ExtractImages extracts all images from a PDF file using pdfcpu's extract functionality.
// Pages come back in ascending order.
func ExtractImages(filename string, opts Options) ([]Page, error) {
	pageNumbers, err := parsePageRange(opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", opts.Pages, err)
	}

	tempDir, err := os.MkdirTemp("", "yolodet-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pageNumbers) > 0 {
		pageStrings = make([]string, len(pageNumbers))
		for i, n := range pageNumbers {
			pageStrings[i] = strconv.Itoa(n)
		}
	}

	conf := model.NewDefaultConfiguration()
	if opts.Password != "" {
		conf.UserPW = opts.Password
		conf.OwnerPW = opts.Password
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, conf); err != nil {
		if isEncryptionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	byPage, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}

	pages := make([]Page, 0, len(byPage))
	for n, imgs := range byPage {
		pages = append(pages, Page{Number: n, Images: imgs})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	if opts.MaxPages > 0 && len(pages) > opts.MaxPages {
		slog.Debug("Truncating PDF pages", "found", len(pages), "max", opts.MaxPages)
		pages = pages[:opts.MaxPages]
	}
	return pages, nil
}

// ExtractImagesFromBytes writes data to a temporary file and extracts from it.
func ExtractImagesFromBytes(data []byte, opts Options) ([]Page, error) {
	f, err := os.CreateTemp("", "yolodet-upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return ExtractImages(f.Name(), opts)
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") ||
		strings.Contains(msg, "password") ||
		strings.Contains(msg, "decrypt")
}

// collectExtractedImages walks dir and groups images by page number.
// It expects filenames in the pdfcpu format: <name>_<page>_<obj>.<ext> or page_<num>_... .
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	type entry struct {
		page int
		name string
		img  image.Image
	}
	var found []entry

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil
		}
		img, _, err := utils.LoadImage(path)
		if err != nil {
			slog.Debug("Skipping unreadable PDF image", "file", info.Name(), "error", err)
			return nil
		}
		found = append(found, entry{page: pageNum, name: info.Name(), img: img})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })
	result := make(map[int][]image.Image)
	for _, e := range found {
		result[e.page] = append(result[e.page], e.img)
	}
	return result, nil
}
