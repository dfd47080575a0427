package pdfimages

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// parsePageFromFilename extracts the page number from an extracted image file name.
// pdfcpu writes <pdf name>_<page>_<resource>.<ext>; page_<num>_image_<idx>.<ext> is also accepted.
func parsePageFromFilename(filename string) (int, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")

	var token string
	switch {
	case strings.HasPrefix(base, "page_") && len(parts) >= 2:
		token = parts[1]
	case len(parts) >= 3:
		token = parts[len(parts)-2]
	default:
		return 0, errors.New("invalid filename format")
	}

	pageNum, err := strconv.Atoi(token)
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
// Duplicates are kept out and order of first appearance is preserved.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(pageRange, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.New("empty page token")
		}
		tokenPages, err := parseRangeToken(part)
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start < 1 {
			return nil, fmt.Errorf("page numbers start at 1, got %d", start)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page numbers start at 1, got %d", page)
	}
	return []int{page}, nil
}
