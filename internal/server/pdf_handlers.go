package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/yolodet/internal/common"
	"github.com/MeKo-Tech/yolodet/internal/pdfimages"
	"github.com/MeKo-Tech/yolodet/internal/pipeline"
)

// predictPDFHandler runs detection on every image embedded in an uploaded PDF.
func (s *Server) predictPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := s.app.RequirePipeline()
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourcePDF, "unavailable").Inc()
		s.writeErrorResponse(w, "Model not loaded", http.StatusServiceUnavailable)
		return
	}

	data, opts, req, ok := s.parsePDFRequest(w, r)
	if !ok {
		predictRequestsTotal.WithLabelValues(sourcePDF, "invalid").Inc()
		return // error already written
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := p.ProcessPDF(ctx, data, opts, req.Confidence, req.Language)
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourcePDF, "error").Inc()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pdfimages.ErrEncrypted):
			status = http.StatusUnprocessableEntity
		case strings.Contains(err.Error(), "invalid page range"):
			status = http.StatusBadRequest
		}
		slog.Error("PDF detection failed", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("PDF processing failed: %v", err), status)
		return
	}

	predictRequestsTotal.WithLabelValues(sourcePDF, "success").Inc()
	for _, page := range res.Pages {
		for _, img := range page.Images {
			observeResult(sourcePDF, img)
		}
	}

	resp, err := s.buildPDFResponse(res, req, formValue(r, "annotated") != "false")
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, nil, http.StatusOK, resp)
}

func (s *Server) parsePDFRequest(w http.ResponseWriter, r *http.Request) ([]byte, pdfimages.Options, *predictRequest, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		s.handleFormParseError(w, err)
		return nil, pdfimages.Options{}, nil, false
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.writeErrorResponse(w, "No PDF file provided", http.StatusBadRequest)
		return nil, pdfimages.Options{}, nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, pdfimages.Options{}, nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read PDF data", http.StatusInternalServerError)
		return nil, pdfimages.Options{}, nil, false
	}

	req, err := s.parseOptions(r.FormValue("confidence"), r.FormValue("language"), "")
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, pdfimages.Options{}, nil, false
	}

	opts := pdfimages.Options{
		Pages:    r.FormValue("pages"),
		Password: r.FormValue("password"),
		MaxPages: s.pdfMaxPages,
	}
	return data, opts, req, true
}

func (s *Server) buildPDFResponse(res *pipeline.PDFResult, req *predictRequest, withImages bool) (PDFResponse, error) {
	resp := PDFResponse{
		Success:             true,
		TotalPages:          res.TotalPages,
		Pages:               make([]PDFPageResponse, 0, len(res.Pages)),
		ModelUsed:           orNone(s.app.ModelName()),
		Language:            string(req.Language),
		ConfidenceThreshold: req.Confidence,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	}
	for _, page := range res.Pages {
		pr := PDFPageResponse{Page: page.PageNumber, Images: make([]PredictResponse, 0, len(page.Images))}
		for _, img := range page.Images {
			ir, err := s.buildPredictResponse(img, withImages)
			if err != nil {
				return PDFResponse{}, err
			}
			resp.TotalDetections += ir.TotalDetections
			pr.Images = append(pr.Images, ir)
		}
		resp.Pages = append(resp.Pages, pr)
	}
	resp.Processing.ExtractionMs = common.Milliseconds(time.Duration(res.Processing.ExtractionNs))
	resp.Processing.TotalMs = common.Milliseconds(time.Duration(res.Processing.TotalNs))
	return resp, nil
}
