package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusDAGMonotone(t *testing.T) {
	assert.True(t, StatusUploading.CanAdvanceTo(StatusPending))
	assert.True(t, StatusPending.CanAdvanceTo(StatusExtracting))
	assert.True(t, StatusExtracting.CanAdvanceTo(StatusParsing))
	assert.True(t, StatusIndexing.CanAdvanceTo(StatusCompleted))

	// Skipping stages forward is legal; going back is not.
	assert.True(t, StatusPending.CanAdvanceTo(StatusStoring))
	assert.False(t, StatusStoring.CanAdvanceTo(StatusPending))
	assert.False(t, StatusMapping.CanAdvanceTo(StatusMapping))
}

func TestStatusFailedFromAnyNonTerminal(t *testing.T) {
	for _, s := range []IntakeStatus{StatusUploading, StatusPending, StatusExtracting, StatusParsing, StatusMapping, StatusStoring, StatusIndexing} {
		assert.True(t, s.CanAdvanceTo(StatusFailed), "failed should be reachable from %s", s)
	}
	assert.False(t, StatusCompleted.CanAdvanceTo(StatusFailed))
	assert.False(t, StatusFailed.CanAdvanceTo(StatusPending))
	assert.False(t, StatusFailed.CanAdvanceTo(StatusCompleted))
}

func TestStatusProgress(t *testing.T) {
	assert.Equal(t, 0.0, StatusUploading.Progress())
	assert.Equal(t, 1.0, StatusCompleted.Progress())
	assert.Equal(t, 0.0, StatusFailed.Progress())
	assert.InDelta(t, 2.0/7.0, StatusExtracting.Progress(), 1e-9)
}

func TestMatchMethodThresholds(t *testing.T) {
	assert.Equal(t, 1.0, MatchExact.ConfidentThreshold())
	assert.Equal(t, 0.9, MatchSubstring.ConfidentThreshold())
	assert.Equal(t, 0.75, MatchFuzzy.ConfidentThreshold())
	assert.Equal(t, 0.85, MatchSemantic.ConfidentThreshold())
	assert.True(t, MatchExact.Confident())
	assert.False(t, MatchFuzzySuggested.Confident())
	assert.False(t, MatchNone.Confident())
}

func TestDateRangeSwap(t *testing.T) {
	d := DateRange{Start: "2022-01-01", End: "2020-01-01"}
	assert.True(t, d.Inverted())
	s := d.Swap()
	assert.False(t, s.Inverted())
	assert.Equal(t, "2020-01-01", s.Start)

	// Open-ended ranges are never inverted.
	assert.False(t, DateRange{Start: "2020-01-01"}.Inverted())
}

func TestQualityLevel(t *testing.T) {
	assert.Equal(t, "excellent", QualityLevel(0.95))
	assert.Equal(t, "good", QualityLevel(0.7))
	assert.Equal(t, "fair", QualityLevel(0.55))
	assert.Equal(t, "poor", QualityLevel(0.3))
	assert.Equal(t, "insufficient", QualityLevel(0.1))
}
