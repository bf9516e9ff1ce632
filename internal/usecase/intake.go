// Package usecase contains the application services: the intake pipeline,
// the query flow, and the status read model.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/internal/service/quality"
)

// ocrMaxPages bounds how many pages of a scanned document are rendered and
// recognized. CVs longer than this carry no extra signal worth the OCR cost.
const ocrMaxPages = 10

// DocumentRouter classifies an uploaded file and extracts its text layer
// when one exists.
type DocumentRouter interface {
	Classify(path, declaredType string) (domain.DocumentType, error)
	Extract(path string, docType domain.DocumentType) (domain.ExtractionResult, error)
}

// PageRenderer rasterizes document pages for OCR.
type PageRenderer interface {
	RenderPages(ctx domain.Context, path string, maxPages int) ([][]byte, error)
}

// Recognizer runs OCR over rendered pages.
type Recognizer interface {
	Recognize(ctx domain.Context, pages [][]byte) (domain.ExtractionResult, error)
}

// ProfileStructurer turns raw CV text into a structured profile.
type ProfileStructurer interface {
	Structure(ctx domain.Context, rawText string) (domain.CandidateProfile, []domain.QualityWarning, error)
}

// TaxonomyMapper resolves free-text proficiencies to canonical taxonomy
// entries, collecting the leftovers.
type TaxonomyMapper interface {
	MapProfile(ctx domain.Context, p *domain.CandidateProfile) ([]domain.UnmatchedItem, error)
}

// SearchIndexer pushes one candidate document into the search engine.
type SearchIndexer interface {
	IndexProfile(ctx domain.Context, p domain.CandidateProfile) error
}

// IntakeService drives one CV from uploaded object to indexed candidate.
type IntakeService struct {
	State      domain.IntakeStateStore
	Objects    domain.ObjectStore
	Queue      domain.Queue
	Router     DocumentRouter
	Renderer   PageRenderer
	OCR        Recognizer
	Structurer ProfileStructurer
	Mapper     TaxonomyMapper
	Quality    *quality.Gate
	Repo       domain.CandidateRepository
	Indexer    SearchIndexer
}

// Register records a freshly uploaded object and enqueues its pipeline
// task. The correlation id is taken from the object key when the key
// follows the artifact layout, otherwise minted here.
func (s *IntakeService) Register(ctx domain.Context, bucket, objectKey, filename, contentType string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("%w: object key required", domain.ErrInvalidArgument)
	}
	id := domain.CorrelationIDFromKey(objectKey)
	if id == "" {
		id = uuid.NewString()
	}
	if filename == "" {
		filename = filepath.Base(objectKey)
	}

	now := time.Now().UTC()
	err := s.State.Create(ctx, domain.IntakeRecord{
		CVID:      id,
		Status:    domain.StatusPending,
		S3Key:     objectKey,
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		// Bucket notifications are at-least-once; a duplicate event must not
		// restart a pipeline that is already running.
		if errors.Is(err, domain.ErrConflict) {
			return id, nil
		}
		return "", fmt.Errorf("op=usecase.Register: %w", err)
	}

	if _, err := s.Queue.EnqueueIntake(ctx, domain.IntakeTaskPayload{
		CorrelationID: id,
		Bucket:        bucket,
		ObjectKey:     objectKey,
		Filename:      filename,
		ContentType:   contentType,
	}); err != nil {
		_, _ = s.State.Update(ctx, id, domain.StatusUpdate{
			Status:     domain.StatusFailed,
			Error:      "enqueue failed",
			FailedStep: "register",
		})
		return "", fmt.Errorf("op=usecase.Register: %w", err)
	}
	return id, nil
}

// Process runs the full pipeline for one queued intake. Transient upstream
// failures propagate without touching the record so the queue redelivers;
// everything else marks the record failed at the step that broke.
func (s *IntakeService) Process(ctx domain.Context, payload domain.IntakeTaskPayload) error {
	id := payload.CorrelationID
	if id == "" {
		return fmt.Errorf("%w: correlation id required", domain.ErrInvalidArgument)
	}

	observability.IntakesInFlight.Inc()
	defer observability.IntakesInFlight.Dec()

	if _, err := s.State.Update(ctx, id, domain.StatusUpdate{Status: domain.StatusExtracting}); err != nil {
		if errors.Is(err, domain.ErrStatusRegression) {
			// Redelivery of an intake that already moved on.
			slog.Info("intake replay ignored", slog.String("correlation_id", id))
			return nil
		}
		return fmt.Errorf("op=usecase.Process: %w", err)
	}

	res, err := s.extract(ctx, payload)
	if err != nil {
		return s.fail(ctx, id, "extract", err)
	}
	if _, err := s.State.Update(ctx, id, domain.StatusUpdate{
		Status:               domain.StatusParsing,
		ExtractionMethod:     res.Method,
		ExtractionConfidence: res.Confidence,
		TextKey:              domain.TextKey(id),
	}); err != nil {
		return s.fail(ctx, id, "extract", err)
	}

	profile, warnings, err := s.structure(ctx, id, res.Text)
	if err != nil {
		return s.fail(ctx, id, "structure", err)
	}
	if _, err := s.State.Update(ctx, id, domain.StatusUpdate{
		Status:    domain.StatusMapping,
		ParsedKey: domain.ParsedKey(id),
	}); err != nil {
		return s.fail(ctx, id, "structure", err)
	}

	unmatched, err := s.mapTaxonomy(ctx, id, &profile)
	if err != nil {
		return s.fail(ctx, id, "map", err)
	}
	if _, err := s.State.Update(ctx, id, domain.StatusUpdate{Status: domain.StatusStoring}); err != nil {
		return s.fail(ctx, id, "map", err)
	}

	outcome, err := s.store(ctx, &profile, unmatched, warnings)
	if err != nil {
		return s.fail(ctx, id, "store", err)
	}
	if _, err := s.State.Update(ctx, id, domain.StatusUpdate{
		Status:            domain.StatusIndexing,
		CandidateID:       outcome.CandidateID,
		CompletenessScore: profile.Completeness,
		QualityLevel:      domain.QualityLevel(profile.Completeness),
		Counts:            &outcome.Counts,
		WriteVerification: &outcome.Verification,
		CompletenessAudit: profile.AuditJSON,
	}); err != nil {
		return s.fail(ctx, id, "store", err)
	}

	// Indexing failures degrade search freshness but never fail an intake
	// that is already durably stored.
	final := domain.StatusUpdate{Status: domain.StatusCompleted}
	if err := s.index(ctx, profile); err != nil {
		if isTransient(err) {
			return err
		}
		slog.Warn("candidate indexing failed",
			slog.String("correlation_id", id),
			slog.String("candidate_id", outcome.CandidateID),
			slog.Any("error", err))
		final.IndexingError = err.Error()
	}
	if _, err := s.State.Update(ctx, id, final); err != nil {
		return s.fail(ctx, id, "index", err)
	}

	observability.IntakesTotal.WithLabelValues("completed").Inc()
	slog.Info("intake completed",
		slog.String("correlation_id", id),
		slog.String("candidate_id", outcome.CandidateID),
		slog.String("method", res.Method),
		slog.Float64("completeness", profile.Completeness))
	return nil
}

// extract downloads the upload, classifies it, and produces sanitized text
// either from the text layer or through the OCR engine.
func (s *IntakeService) extract(ctx domain.Context, payload domain.IntakeTaskPayload) (domain.ExtractionResult, error) {
	start := time.Now()
	defer observability.ObserveStage("extract", start)

	data, err := s.Objects.Get(ctx, payload.ObjectKey)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	path, cleanup, err := spool(data, payload.Filename)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	defer cleanup()

	docType, err := s.Router.Classify(path, payload.ContentType)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	var res domain.ExtractionResult
	switch docType {
	case domain.DocDOCX, domain.DocPDFText:
		res, err = s.Router.Extract(path, docType)
	case domain.DocPDFScanned:
		var pages [][]byte
		pages, err = s.Renderer.RenderPages(ctx, path, ocrMaxPages)
		if err == nil {
			res, err = s.OCR.Recognize(ctx, pages)
			res.DocumentType = domain.DocPDFScanned
		}
	case domain.DocImage:
		res, err = s.OCR.Recognize(ctx, [][]byte{data})
		res.DocumentType = domain.DocImage
	default:
		return domain.ExtractionResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, payload.Filename)
	}
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return domain.ExtractionResult{}, fmt.Errorf("%w: no text extracted", domain.ErrSchemaInvalid)
	}

	id := payload.CorrelationID
	if err := s.Objects.Put(ctx, domain.TextKey(id), []byte(res.Text), "text/plain; charset=utf-8"); err != nil {
		return domain.ExtractionResult{}, err
	}
	meta := res
	meta.Text = "" // diagnostics artifact carries everything but the text itself
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	if err := s.Objects.Put(ctx, domain.MetadataKey(id), metaJSON, "application/json"); err != nil {
		return domain.ExtractionResult{}, err
	}
	return res, nil
}

func (s *IntakeService) structure(ctx domain.Context, id, rawText string) (domain.CandidateProfile, []domain.QualityWarning, error) {
	start := time.Now()
	defer observability.ObserveStage("structure", start)

	profile, warnings, err := s.Structurer.Structure(ctx, rawText)
	if err != nil {
		return domain.CandidateProfile{}, nil, err
	}

	parsedJSON, err := json.Marshal(profile)
	if err != nil {
		return domain.CandidateProfile{}, nil, err
	}
	if err := s.Objects.Put(ctx, domain.ParsedKey(id), parsedJSON, "application/json"); err != nil {
		return domain.CandidateProfile{}, nil, err
	}
	return profile, warnings, nil
}

func (s *IntakeService) mapTaxonomy(ctx domain.Context, id string, profile *domain.CandidateProfile) ([]domain.UnmatchedItem, error) {
	start := time.Now()
	defer observability.ObserveStage("map", start)

	unmatched, err := s.Mapper.MapProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	if len(unmatched) > 0 {
		unmatchedJSON, err := json.Marshal(unmatched)
		if err != nil {
			return nil, err
		}
		if err := s.Objects.Put(ctx, domain.UnmatchedKey(id), unmatchedJSON, "application/json"); err != nil {
			return nil, err
		}
	}
	return unmatched, nil
}

func (s *IntakeService) store(ctx domain.Context, profile *domain.CandidateProfile, unmatched []domain.UnmatchedItem, warnings []domain.QualityWarning) (domain.WriteOutcome, error) {
	start := time.Now()
	defer observability.ObserveStage("store", start)

	gateWarnings, audit := s.Quality.Inspect(profile)
	profile.AuditJSON = audit.JSON()
	profile.IsActive = true
	warnings = append(warnings, gateWarnings...)

	outcome, err := s.Repo.WriteProfile(ctx, *profile, unmatched, warnings)
	if err != nil {
		return domain.WriteOutcome{}, err
	}
	profile.ID = outcome.CandidateID
	return outcome, nil
}

func (s *IntakeService) index(ctx domain.Context, profile domain.CandidateProfile) error {
	start := time.Now()
	defer observability.ObserveStage("index", start)
	return s.Indexer.IndexProfile(ctx, profile)
}

// fail records the terminal failure unless the error is transient, in which
// case the record is left as-is and the queue redelivers the task.
func (s *IntakeService) fail(ctx domain.Context, id, step string, err error) error {
	if isTransient(err) {
		slog.Warn("intake stage hit transient upstream error, leaving for redelivery",
			slog.String("correlation_id", id),
			slog.String("step", step),
			slog.Any("error", err))
		return fmt.Errorf("op=usecase.Process step=%s: %w", step, err)
	}
	if _, uerr := s.State.Update(ctx, id, domain.StatusUpdate{
		Status:     domain.StatusFailed,
		Error:      err.Error(),
		FailedStep: step,
	}); uerr != nil {
		slog.Error("intake fail-mark failed",
			slog.String("correlation_id", id),
			slog.Any("error", uerr))
	}
	observability.IntakesTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("op=usecase.Process step=%s: %w", step, err)
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrUpstreamRateLimit) ||
		errors.Is(err, context.DeadlineExceeded)
}

// spool writes upload bytes to a temp file with the original extension so
// extension-based classification still works.
func spool(data []byte, filename string) (string, func(), error) {
	f, err := os.CreateTemp("", "intake-*"+filepath.Ext(filename))
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
