package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// IntakeStatusView is the caller-facing status document: the intake record
// plus derived progress and, once available, the parsed artifacts.
type IntakeStatusView struct {
	domain.IntakeRecord
	Progress  float64         `json:"progress"`
	Parsed    json.RawMessage `json:"parsed_cv,omitempty"`
	Unmatched json.RawMessage `json:"unmatched_items,omitempty"`
}

// StatusService is the read model over intake state and artifacts.
type StatusService struct {
	State   domain.IntakeStateStore
	Objects domain.ObjectStore
}

// Status returns the current view of one intake. Artifact reads are
// best-effort: a missing unmatched artifact just means nothing was
// unmatched.
func (s *StatusService) Status(ctx domain.Context, correlationID string) (IntakeStatusView, error) {
	if correlationID == "" {
		return IntakeStatusView{}, fmt.Errorf("%w: correlation id required", domain.ErrInvalidArgument)
	}
	rec, err := s.State.Get(ctx, correlationID)
	if err != nil {
		return IntakeStatusView{}, fmt.Errorf("op=usecase.Status: %w", err)
	}

	view := IntakeStatusView{IntakeRecord: rec, Progress: rec.Status.Progress()}
	if rec.Status != domain.StatusCompleted {
		return view, nil
	}

	view.Parsed = s.artifact(ctx, domain.ParsedKey(correlationID))
	view.Unmatched = s.artifact(ctx, domain.UnmatchedKey(correlationID))
	return view, nil
}

func (s *StatusService) artifact(ctx domain.Context, key string) json.RawMessage {
	data, err := s.Objects.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("status artifact read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil
	}
	if !json.Valid(data) {
		return nil
	}
	return data
}
