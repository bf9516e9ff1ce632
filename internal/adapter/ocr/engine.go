package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Agreement buckets. Boundaries are inclusive at the low end, so a rate of
// exactly 0.70 or 0.90 lands in the higher-confidence bucket.
const (
	agreementHigh = 0.90
	agreementMid  = 0.70

	confidenceHigh       = 0.95
	confidenceMid        = 0.80
	confidenceArbitrated = 0.70

	// singleProviderPenalty is applied when only one provider produced text.
	singleProviderPenalty = 0.30
)

// Arbitrator merges disagreeing OCR outputs. Implemented by the AI adapter.
type Arbitrator interface {
	ArbitrateOCR(ctx context.Context, texts map[string]string) (string, error)
}

// Engine fans a document out to the three providers and fuses the results.
type Engine struct {
	providers  []Provider
	arbitrator Arbitrator
	timeout    time.Duration
}

// NewEngine constructs an Engine. Provider order carries no meaning; ties
// on confidence resolve to the earlier provider.
func NewEngine(providers []Provider, arb Arbitrator, timeout time.Duration) *Engine {
	return &Engine{providers: providers, arbitrator: arb, timeout: timeout}
}

// Recognize runs all providers concurrently and fuses their outputs.
// Provider failures (including timeouts) never abort the fusion; with zero
// valid outputs the result is empty text at confidence 0.
func (e *Engine) Recognize(ctx context.Context, pages [][]byte) (domain.ExtractionResult, error) {
	if len(pages) == 0 {
		return domain.ExtractionResult{}, fmt.Errorf("op=ocr.recognize: %w: no page images", domain.ErrInvalidArgument)
	}

	results := make([]Result, len(e.providers))
	var wg sync.WaitGroup
	for i, p := range e.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			start := time.Now()
			res, err := p.Recognize(pctx, pages)
			res.Engine = p.Name()
			res.Latency = time.Since(start)
			if err != nil {
				res.Err = err
				res.Text = ""
				res.Confidence = 0
				observability.OCRProviderFailures.WithLabelValues(p.Name()).Inc()
			}
			observability.OCRProviderDuration.WithLabelValues(p.Name()).Observe(res.Latency.Seconds())
			results[i] = res
		}(i, p)
	}
	wg.Wait()

	return e.fuse(ctx, results, len(pages))
}

func (e *Engine) fuse(ctx context.Context, results []Result, pageCount int) (domain.ExtractionResult, error) {
	details := &domain.OCRDetails{
		Contributions: map[string]float64{},
		EngineErrors:  map[string]string{},
	}
	var valid []Result
	for _, r := range results {
		if r.Err != nil {
			details.EngineErrors[r.Engine] = r.Err.Error()
			continue
		}
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		valid = append(valid, r)
	}

	out := domain.ExtractionResult{
		Method:       "ocr_fusion",
		DocumentType: domain.DocPDFScanned,
		PageCount:    pageCount,
		OCRDetails:   details,
	}

	switch len(valid) {
	case 0:
		out.Text = ""
		out.Confidence = 0
		return out, nil
	case 1:
		out.Text = valid[0].Text
		out.Confidence = valid[0].Confidence * (1 - singleProviderPenalty)
		details.WinningEngine = valid[0].Engine
		details.Contributions[valid[0].Engine] = 1
		return out, nil
	}

	agreement := meanPairwiseAgreement(valid)
	details.AgreementRate = agreement
	observability.OCRAgreementRate.Observe(agreement)

	winner := highestConfidence(valid)
	switch {
	case agreement >= agreementHigh:
		out.Text = winner.Text
		out.Confidence = confidenceHigh
		details.WinningEngine = winner.Engine
	case agreement >= agreementMid:
		out.Text = winner.Text
		out.Confidence = confidenceMid
		details.WinningEngine = winner.Engine
	default:
		merged, err := e.arbitrate(ctx, results)
		if err != nil {
			// Arbitration is best-effort: fall back to the winner at the
			// arbitrated confidence rather than failing the document.
			slog.Warn("ocr arbitration failed, using highest-confidence text",
				slog.Any("error", err), slog.String("engine", winner.Engine))
			out.Text = winner.Text
		} else {
			out.Text = merged
		}
		out.Confidence = confidenceArbitrated
		details.Arbitrated = true
		observability.OCRArbitrationsTotal.Inc()
	}

	attribute(details, valid, out.Text)
	return out, nil
}

func (e *Engine) arbitrate(ctx context.Context, results []Result) (string, error) {
	texts := make(map[string]string, len(results))
	for _, r := range results {
		texts[r.Engine] = r.Text
	}
	return e.arbitrator.ArbitrateOCR(ctx, texts)
}

// meanPairwiseAgreement is the mean lowercase LCS ratio over all pairs of
// valid outputs.
func meanPairwiseAgreement(valid []Result) float64 {
	var sum float64
	var n int
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			sum += textx.SimilarityRatio(valid[i].Text, valid[j].Text)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func highestConfidence(valid []Result) Result {
	best := valid[0]
	for _, r := range valid[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}

// attribute computes per-engine contribution as similarity to the final
// text, normalized to sum to 1.
func attribute(details *domain.OCRDetails, valid []Result, finalText string) {
	var total float64
	sims := make(map[string]float64, len(valid))
	for _, r := range valid {
		s := textx.SimilarityRatio(r.Text, finalText)
		sims[r.Engine] = s
		total += s
	}
	if total == 0 {
		return
	}
	for engine, s := range sims {
		details.Contributions[engine] = s / total
	}
}
