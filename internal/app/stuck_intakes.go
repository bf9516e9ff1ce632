package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
)

// StuckIntakeSweeper periodically fails intake records that sat in a
// non-terminal state longer than the configured age. A worker crash mid
// pipeline otherwise leaves the record in-flight forever.
type StuckIntakeSweeper struct {
	state    domain.IntakeStateStore
	maxAge   time.Duration
	interval time.Duration
}

// NewStuckIntakeSweeper returns nil when state is nil so callers can wire
// it unconditionally.
func NewStuckIntakeSweeper(state domain.IntakeStateStore, maxAge, interval time.Duration) *StuckIntakeSweeper {
	if state == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StuckIntakeSweeper{state: state, maxAge: maxAge, interval: interval}
}

// Run sweeps until the context is cancelled.
func (s *StuckIntakeSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck intake sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckIntakeSweeper) sweepOnce(ctx context.Context) {
	ctx, span := otel.Tracer("intake.sweeper").Start(ctx, "StuckIntakeSweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(attribute.Float64("intake.max_age_seconds", s.maxAge.Seconds()))

	ids, err := s.state.ListStale(ctx, s.maxAge)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck intake sweep failed to list", slog.Any("error", err))
		return
	}

	failed := 0
	for _, id := range ids {
		_, err := s.state.Update(ctx, id, domain.StatusUpdate{
			Status:     domain.StatusFailed,
			Error:      "processing timeout",
			FailedStep: "sweeper",
		})
		if err != nil {
			// A record that advanced between listing and updating is fine.
			slog.Warn("stuck intake fail-mark skipped",
				slog.String("correlation_id", id),
				slog.Any("error", err))
			continue
		}
		observability.IntakesTotal.WithLabelValues("failed").Inc()
		failed++
	}
	span.SetAttributes(
		attribute.Int("intake.stale", len(ids)),
		attribute.Int("intake.failed", failed),
	)
	if failed > 0 {
		slog.Warn("stuck intakes marked failed", slog.Int("count", failed))
	}
}
