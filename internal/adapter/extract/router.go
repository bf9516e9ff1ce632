// Package extract classifies uploaded documents and extracts text from the
// formats that need no OCR (DOCX and text-layer PDFs).
//
// Direct extraction is fully local: DOCX is a zip of flat OOXML parsed with
// the standard library, PDFs go through the text layer. Scanned PDFs and
// images are routed to the OCR engine.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// pdfTextProbeMin is the number of characters the first three pages must
// yield for a PDF to count as text-layer.
const pdfTextProbeMin = 100

// pdfProbePages is how many leading pages the router samples.
const pdfProbePages = 3

// Router implements document classification (extension first, content
// sniffing as fallback, text-layer probing for PDFs).
type Router struct{}

// NewRouter constructs a Router.
func NewRouter() *Router { return &Router{} }

// Classify returns the document type for the file at path with its declared
// media type. Unsupported inputs return ErrUnsupportedMedia.
func (r *Router) Classify(path, declaredType string) (domain.DocumentType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return domain.DocDOCX, nil
	case ".pdf":
		return r.classifyPDF(path)
	case ".jpg", ".jpeg", ".png":
		return domain.DocImage, nil
	}
	// No trusted extension: sniff content, then fall back to the declared type.
	mt, err := mimetype.DetectFile(path)
	if err == nil {
		switch {
		case mt.Is("application/pdf"):
			return r.classifyPDF(path)
		case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
			return domain.DocDOCX, nil
		case mt.Is("image/jpeg"), mt.Is("image/png"):
			return domain.DocImage, nil
		}
	}
	switch strings.ToLower(declaredType) {
	case "application/pdf":
		return r.classifyPDF(path)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return domain.DocDOCX, nil
	case "image/jpeg", "image/png":
		return domain.DocImage, nil
	}
	return domain.DocUnsupported, fmt.Errorf("op=extract.classify: %w: %q", domain.ErrUnsupportedMedia, declaredType)
}

// classifyPDF samples the first pages through the direct extractor: at
// least 100 characters of recovered text means a usable text layer.
func (r *Router) classifyPDF(path string) (domain.DocumentType, error) {
	text, _, err := extractPDFPages(path, pdfProbePages)
	if err != nil {
		// Unreadable text layer is not fatal; OCR handles it.
		return domain.DocPDFScanned, nil
	}
	if len(strings.TrimSpace(text)) >= pdfTextProbeMin {
		return domain.DocPDFText, nil
	}
	return domain.DocPDFScanned, nil
}

// Extract runs direct extraction for DOCX and text-PDF documents.
// Confidence is 1.0: no recognition step is involved.
func (r *Router) Extract(path string, docType domain.DocumentType) (domain.ExtractionResult, error) {
	switch docType {
	case domain.DocDOCX:
		text, hasImages, err := extractDOCX(path)
		if err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("op=extract.docx: %w", err)
		}
		return domain.ExtractionResult{
			Text:         text,
			Method:       "direct_docx",
			DocumentType: docType,
			Confidence:   1.0,
			HasImages:    hasImages,
		}, nil
	case domain.DocPDFText:
		text, pages, err := extractPDFPages(path, 0)
		if err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("op=extract.pdf: %w", err)
		}
		return domain.ExtractionResult{
			Text:         text,
			Method:       "direct_pdf",
			DocumentType: docType,
			Confidence:   1.0,
			PageCount:    pages,
		}, nil
	}
	return domain.ExtractionResult{}, fmt.Errorf("op=extract.extract: %w: direct extraction does not handle %s", domain.ErrInvalidArgument, docType)
}
