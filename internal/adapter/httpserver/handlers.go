package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/usecase"
)

// allowedExtensions are the document types the extraction router handles.
var allowedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true,
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
}

// Server wires the application services to HTTP routes.
type Server struct {
	Cfg     config.Config
	Intake  *usecase.IntakeService
	Query   *usecase.QueryService
	Status  *usecase.StatusService
	Objects domain.ObjectStore
	Budget  BudgetLimiter
}

// Mount registers the API routes on the given router. The query route
// carries the shared LLM budget on top of the caller's per-IP limit.
func (s *Server) Mount(r chi.Router) {
	r.With(BudgetLimit(s.Budget, "query")).Post("/v1/query", s.handleQuery)
	r.Post("/v1/intake/events", s.handleIntakeEvent)
	r.Get("/status/{correlationID}", s.handleStatus)
	r.Get("/v1/status/{correlationID}", s.handleStatus)
	r.Get("/v1/hr-jobs/{jobID}", s.handleHRJob)
}

type queryRequestDTO struct {
	Query             string `json:"query" validate:"required,min=2,max=500"`
	Execute           bool   `json:"execute"`
	UseJobMatching    bool   `json:"use_job_matching"`
	IncludeHRAnalysis bool   `json:"include_hr_analysis"`
	AsyncHR           bool   `json:"async_hr"`
	Limit             int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var dto queryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument), nil)
		return
	}
	if err := validate.Struct(dto); err != nil {
		writeError(w, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
		return
	}

	req := usecase.QueryRequest{
		Query:          dto.Query,
		Execute:        dto.Execute,
		UseJobMatching: dto.UseJobMatching,
		Limit:          dto.Limit,
	}
	if dto.IncludeHRAnalysis {
		req.HRAnalysis = "sync"
		if dto.AsyncHR {
			req.HRAnalysis = "async"
		}
	}

	resp, err := s.Query.Query(r.Context(), req)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type intakeEventDTO struct {
	Bucket      string `json:"bucket" validate:"required"`
	ObjectKey   string `json:"object_key" validate:"required,max=1024"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// handleIntakeEvent is the object-store notification webhook: it validates
// the uploaded object and enqueues the pipeline task.
func (s *Server) handleIntakeEvent(w http.ResponseWriter, r *http.Request) {
	var dto intakeEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument), nil)
		return
	}
	if err := validate.Struct(dto); err != nil {
		writeError(w, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
		return
	}

	filename := dto.Filename
	if filename == "" {
		filename = filepath.Base(dto.ObjectKey)
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, filename), eventDetails(dto.ObjectKey))
		return
	}

	size, meta, err := s.Objects.Stat(r.Context(), dto.ObjectKey)
	if err != nil {
		writeError(w, err, eventDetails(dto.ObjectKey))
		return
	}
	if size > s.Cfg.MaxUploadBytes() {
		writeError(w, fmt.Errorf("%w: object exceeds %d MB", domain.ErrInvalidArgument, s.Cfg.MaxUploadMB),
			eventDetails(dto.ObjectKey))
		return
	}
	// The uploader stamps the correlation id into the object metadata; a
	// value that disagrees with the key means the notification and the
	// object are out of sync.
	if bound := metadataCorrelationID(meta); bound != "" {
		if keyed := domain.CorrelationIDFromKey(dto.ObjectKey); keyed != "" && bound != keyed {
			writeError(w, fmt.Errorf("%w: correlation_id metadata does not match object key", domain.ErrInvalidArgument),
				map[string]string{"correlation_id": keyed, "metadata_correlation_id": bound})
			return
		}
	}

	id, err := s.Intake.Register(r.Context(), dto.Bucket, dto.ObjectKey, filename, dto.ContentType)
	if err != nil {
		writeError(w, err, eventDetails(dto.ObjectKey))
		return
	}
	LoggerFrom(r).Info("intake registered",
		slog.String("correlation_id", id),
		slog.String("object_key", dto.ObjectKey))
	writeJSON(w, http.StatusAccepted, map[string]string{"correlation_id": id, "status": string(domain.StatusPending)})
}

// metadataCorrelationID finds the correlation id in object user metadata.
// S3 gateways canonicalize metadata keys, so matching ignores case and
// treats dashes and underscores alike.
func metadataCorrelationID(meta map[string]string) string {
	for k, v := range meta {
		norm := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if norm == "correlation_id" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// eventDetails echoes the correlation id on rejections when the key
// carries one.
func eventDetails(objectKey string) map[string]string {
	if id := domain.CorrelationIDFromKey(objectKey); id != "" {
		return map[string]string{"correlation_id": id}
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.Status.Status(r.Context(), chi.URLParam(r, "correlationID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHRJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Query.HRJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
