// Package ocr runs three OCR providers in parallel and fuses their outputs
// with agreement-based voting, escalating to LLM arbitration when the
// providers disagree.
//
// The providers have uncorrelated failure modes (typography, language
// models, page layout), so pairwise agreement is a usable proxy for
// correctness; arbitration only on hard cases caps LLM cost.
package ocr

import (
	"context"
	"time"
)

// Provider names used in diagnostics and metrics.
const (
	EngineVision = "vision_llm"
	EngineLocal  = "tesseract"
	EngineCloud  = "cloud_ocr"
)

// Result is one provider's output. A failed provider carries Err and empty
// text; it still enters fusion (as an invalid vote).
type Result struct {
	Engine     string
	Text       string
	Confidence float64
	Latency    time.Duration
	Err        error
}

// Provider recognizes text on a sequence of page images. Implementations
// must honor ctx cancellation; the engine applies a per-provider timeout.
type Provider interface {
	Name() string
	Recognize(ctx context.Context, pages [][]byte) (Result, error)
}
