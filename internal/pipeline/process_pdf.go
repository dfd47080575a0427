package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/pdfimages"
	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// ProcessPDF extracts the embedded images of a PDF and processes each one.
func (p *Pipeline) ProcessPDF(ctx context.Context, data []byte, opts pdfimages.Options,
	confidence float64, lang translate.Language,
) (*PDFResult, error) {
	if len(data) == 0 {
		return nil, errors.New("pdf data cannot be empty")
	}

	totalStart := time.Now()
	pages, err := pdfimages.ExtractImagesFromBytes(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	extractNs := time.Since(totalStart).Nanoseconds()

	result := &PDFResult{Pages: make([]PDFPageResult, 0, len(pages))}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageResult, err := p.processPDFPage(ctx, page.Number, page.Images, confidence, lang)
		if err != nil {
			return nil, fmt.Errorf("failed to process page %d: %w", page.Number, err)
		}
		result.Pages = append(result.Pages, *pageResult)
	}

	result.TotalPages = len(result.Pages)
	result.Processing.ExtractionNs = extractNs
	result.Processing.TotalNs = time.Since(totalStart).Nanoseconds()
	return result, nil
}

func (p *Pipeline) processPDFPage(ctx context.Context, pageNum int, images []image.Image,
	confidence float64, lang translate.Language,
) (*PDFPageResult, error) {
	out := &PDFPageResult{PageNumber: pageNum, Images: make([]*Result, 0, len(images))}
	for i, img := range images {
		res, err := p.Process(ctx, img, confidence, lang)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out.Images = append(out.Images, res)
	}
	return out, nil
}
