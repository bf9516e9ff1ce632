package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hrdataworks/talentdb/internal/domain"
)

const arbitrationSystem = `You reconcile multiple OCR transcriptions of the same CV page.
The transcriptions disagree. Produce the single most plausible transcription:
prefer real Greek and English words, keep names and dates exactly as the
majority of engines read them, and never invent content absent from all inputs.
Return only the reconciled plain text, no commentary.`

// ArbitrateOCR merges disagreeing OCR transcriptions through the cheap model.
// Inputs are truncated to the configured token budget so a pathological page
// cannot blow the context window.
func (c *Client) ArbitrateOCR(ctx domain.Context, texts map[string]string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("op=ai.arbitrate: %w: no transcriptions", domain.ErrInvalidArgument)
	}

	engines := make([]string, 0, len(texts))
	for name := range texts {
		engines = append(engines, name)
	}
	sort.Strings(engines)

	var prompt strings.Builder
	for _, name := range engines {
		prompt.WriteString("### Transcription from ")
		prompt.WriteString(name)
		prompt.WriteString("\n")
		prompt.WriteString(c.truncateTokens(texts[name], c.cfg.OCRArbitMaxLen))
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Reconciled transcription:")

	res, err := c.Complete(ctx, domain.CompletionRequest{
		System:      arbitrationSystem,
		Prompt:      prompt.String(),
		Model:       c.cfg.LLMCheapModel,
		MaxTokens:   4096,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.arbitrate: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

// truncateTokens trims text to at most maxTokens using the cl100k_base
// encoding. On encoder failure it falls back to a rune cut at 4x the budget,
// a safe over-approximation of tokens per rune.
func (c *Client) truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		runes := []rune(text)
		if len(runes) > maxTokens*4 {
			return string(runes[:maxTokens*4])
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
