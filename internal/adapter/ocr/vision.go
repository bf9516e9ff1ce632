package ocr

import (
	"context"
	"fmt"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// visionConfidencePrior is the fixed confidence assigned to the vision LLM:
// it reports no per-token scores, and empirically sits near the top of the
// three engines on typeset pages.
const visionConfidencePrior = 0.95

const visionPrompt = `Transcribe all text visible in this scanned CV page exactly as written.
Preserve line breaks. The document may mix Greek and English. Output only
the transcription, no commentary.`

// VisionProvider performs OCR through a vision-capable LLM using the
// first-page render.
type VisionProvider struct {
	ai    domain.AIClient
	model string
}

// NewVisionProvider constructs a VisionProvider with the given model tag.
func NewVisionProvider(ai domain.AIClient, model string) *VisionProvider {
	return &VisionProvider{ai: ai, model: model}
}

// Name implements Provider.
func (p *VisionProvider) Name() string { return EngineVision }

// Recognize implements Provider. Only the first page is sent; subsequent
// pages of scanned CVs rarely change the transcription materially and the
// other two engines cover them.
func (p *VisionProvider) Recognize(ctx context.Context, pages [][]byte) (Result, error) {
	res, err := p.ai.Complete(ctx, domain.CompletionRequest{
		Prompt:      visionPrompt,
		Model:       p.model,
		MaxTokens:   4096,
		Temperature: 0,
		Images:      pages[:1],
	})
	if err != nil {
		return Result{}, fmt.Errorf("op=ocr.vision: %w", err)
	}
	return Result{Text: res.Text, Confidence: visionConfidencePrior}, nil
}
