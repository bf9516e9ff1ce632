package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractProvider runs the local trigram OCR with Greek and English
// language models.
type TesseractProvider struct {
	tessdataDir string
}

// NewTesseractProvider constructs a TesseractProvider. tessdataDir may be
// empty to use the system default.
func NewTesseractProvider(tessdataDir string) *TesseractProvider {
	return &TesseractProvider{tessdataDir: tessdataDir}
}

// Name implements Provider.
func (p *TesseractProvider) Name() string { return EngineLocal }

// Recognize implements Provider. Pages are recognized sequentially and
// concatenated; confidence is the mean per-word confidence reported by the
// engine, normalized to [0,1].
func (p *TesseractProvider) Recognize(ctx context.Context, pages [][]byte) (Result, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()
	if p.tessdataDir != "" {
		if err := client.SetTessdataPrefix(p.tessdataDir); err != nil {
			return Result{}, fmt.Errorf("op=ocr.tesseract: %w", err)
		}
	}
	if err := client.SetLanguage("ell", "eng"); err != nil {
		return Result{}, fmt.Errorf("op=ocr.tesseract: %w", err)
	}
	client.SetPageSegMode(gosseract.PSM_AUTO)

	var b strings.Builder
	var confSum float64
	var confN int
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("op=ocr.tesseract: %w", err)
		}
		if err := client.SetImageFromBytes(page); err != nil {
			return Result{}, fmt.Errorf("op=ocr.tesseract: %w", err)
		}
		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return Result{}, fmt.Errorf("op=ocr.tesseract: %w", err)
		}
		for _, box := range boxes {
			b.WriteString(box.Word)
			b.WriteString(" ")
			confSum += box.Confidence
			confN++
		}
		b.WriteString("\n")
	}

	conf := 0.0
	if confN > 0 {
		conf = confSum / float64(confN) / 100.0
	}
	return Result{Text: strings.TrimSpace(b.String()), Confidence: conf}, nil
}
