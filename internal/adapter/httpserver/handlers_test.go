package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/usecase"
)

type stubState struct {
	rec     domain.IntakeRecord
	getErr  error
	created []domain.IntakeRecord
}

func (s *stubState) Create(_ domain.Context, rec domain.IntakeRecord) error {
	s.created = append(s.created, rec)
	return nil
}
func (s *stubState) Get(domain.Context, string) (domain.IntakeRecord, error) {
	return s.rec, s.getErr
}
func (s *stubState) Update(_ domain.Context, id string, upd domain.StatusUpdate) (domain.IntakeRecord, error) {
	return domain.IntakeRecord{CVID: id, Status: upd.Status}, nil
}
func (s *stubState) ListStale(domain.Context, time.Duration) ([]string, error) { return nil, nil }

type stubObjects struct {
	size    int64
	meta    map[string]string
	statErr error
	data    map[string][]byte
}

func (s *stubObjects) Get(_ domain.Context, key string) ([]byte, error) {
	if data, ok := s.data[key]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
}
func (s *stubObjects) Put(domain.Context, string, []byte, string) error { return nil }
func (s *stubObjects) Stat(domain.Context, string) (int64, map[string]string, error) {
	return s.size, s.meta, s.statErr
}

type stubQueue struct{ intake domain.IntakeTaskPayload }

func (s *stubQueue) EnqueueIntake(_ domain.Context, p domain.IntakeTaskPayload) (string, error) {
	s.intake = p
	return p.CorrelationID, nil
}
func (s *stubQueue) EnqueueHRAnalysis(domain.Context, domain.HRTaskPayload) (string, error) {
	return "", nil
}

type stubTranslator struct{ tr domain.Translation }

func (s *stubTranslator) Translate(domain.Context, string) (domain.Translation, error) {
	return s.tr, nil
}

type stubRepo struct{ rows []map[string]any }

func (s *stubRepo) WriteProfile(domain.Context, domain.CandidateProfile, []domain.UnmatchedItem, []domain.QualityWarning) (domain.WriteOutcome, error) {
	return domain.WriteOutcome{}, nil
}
func (s *stubRepo) ExecuteSearch(domain.Context, domain.SQLQuery) ([]map[string]any, error) {
	return s.rows, nil
}
func (s *stubRepo) EnrichedProfiles(domain.Context, []string) ([]map[string]any, error) {
	return nil, nil
}
func (s *stubRepo) RelaxedMatch(domain.Context, map[string]any, int) ([]domain.CandidateMatch, error) {
	return nil, nil
}
func (s *stubRepo) ActiveProfiles(domain.Context) ([]domain.CandidateProfile, error) {
	return nil, nil
}

type stubCache struct{}

func (stubCache) Get(domain.Context, string) (domain.CachedTranslation, bool, error) {
	return domain.CachedTranslation{}, false, nil
}
func (stubCache) Put(domain.Context, string, domain.CachedTranslation) error { return nil }

type stubJobs struct{ job domain.HRJob }

func (s *stubJobs) Create(domain.Context, domain.HRJob) error { return nil }
func (s *stubJobs) Get(_ domain.Context, id string) (domain.HRJob, error) {
	if s.job.ID != id {
		return domain.HRJob{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return s.job, nil
}
func (s *stubJobs) Complete(domain.Context, string, *domain.HRReport) error { return nil }
func (s *stubJobs) Fail(domain.Context, string, string) error               { return nil }

func testServer(t *testing.T) (*Server, *stubState, *stubObjects, *stubQueue) {
	t.Helper()
	state := &stubState{}
	objects := &stubObjects{size: 1024, data: map[string][]byte{}}
	queue := &stubQueue{}
	cfg := config.Config{MaxUploadMB: 10}
	srv := &Server{
		Cfg:     cfg,
		Objects: objects,
		Intake:  &usecase.IntakeService{State: state, Objects: objects, Queue: queue},
		Status:  &usecase.StatusService{State: state, Objects: objects},
		Query: &usecase.QueryService{
			Translator: &stubTranslator{tr: domain.Translation{
				QueryType:  domain.QueryStructured,
				Confidence: 0.9,
				Filters: map[string]domain.FilterCondition{
					"city": {Operator: "contains", Value: "Αθήνα"},
				},
			}},
			Repo:  &stubRepo{},
			Cache: stubCache{},
			Jobs:  &stubJobs{job: domain.HRJob{ID: "job-1", Status: domain.HRJobProcessing}},
		},
	}
	return srv, state, objects, queue
}

func router(srv *Server) http.Handler {
	r := chi.NewRouter()
	srv.Mount(r)
	return r
}

func TestQueryEndpoint(t *testing.T) {
	srv, _, _, _ := testServer(t)
	body := `{"query": "λογιστές στην Αθήνα"}`
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"statement"`)
	assert.Contains(t, rec.Body.String(), `"structured"`)
}

func TestQueryEndpointValidation(t *testing.T) {
	srv, _, _, _ := testServer(t)
	for name, body := range map[string]string{
		"empty query":   `{"query": ""}`,
		"missing query": `{}`,
		"limit too big": `{"query": "ok", "limit": 10000}`,
		"not json":      `query=x`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
		})
	}
}

func TestIntakeEventAccepted(t *testing.T) {
	srv, state, _, queue := testServer(t)
	body := `{"bucket": "cv-intake", "object_key": "uploads/cv-7/bio.pdf"}`
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"correlation_id":"cv-7"`)
	require.Len(t, state.created, 1)
	assert.Equal(t, "cv-7", queue.intake.CorrelationID)
	assert.Equal(t, "bio.pdf", queue.intake.Filename)
}

func TestIntakeEventRejectsOversizedObject(t *testing.T) {
	srv, _, objects, _ := testServer(t)
	objects.size = 11 * 1024 * 1024
	body := `{"bucket": "cv-intake", "object_key": "uploads/cv-7/bio.pdf"}`
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cv-7", "correlation id echoed on rejection")
}

func TestIntakeEventValidatesMetadataBinding(t *testing.T) {
	srv, state, objects, _ := testServer(t)
	body := `{"bucket": "cv-intake", "object_key": "uploads/cv-7/bio.pdf"}`

	// Metadata pointing at a different intake than the key names.
	objects.meta = map[string]string{"Correlation-Id": "cv-99"}
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not match object key")
	assert.Empty(t, state.created)

	// Matching metadata passes, whatever the gateway did to the key casing.
	objects.meta = map[string]string{"correlation_id": "cv-7"}
	rec = httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIntakeEventRejectsUnsupportedType(t *testing.T) {
	srv, _, _, _ := testServer(t)
	body := `{"bucket": "cv-intake", "object_key": "uploads/cv-7/bio.exe"}`
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestIntakeEventMissingObject(t *testing.T) {
	srv, _, objects, _ := testServer(t)
	objects.statErr = fmt.Errorf("%w: no such object", domain.ErrNotFound)
	body := `{"bucket": "cv-intake", "object_key": "uploads/cv-7/bio.pdf"}`
	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/intake/events", strings.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv, state, _, _ := testServer(t)
	state.rec = domain.IntakeRecord{CVID: "cv-1", Status: domain.StatusStoring}

	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/cv-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storing"`)
	assert.Contains(t, rec.Body.String(), `"progress"`)
}

func TestStatusEndpointUnknownID(t *testing.T) {
	srv, state, _, _ := testServer(t)
	state.getErr = fmt.Errorf("%w: cv-404", domain.ErrNotFound)

	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/cv-404", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestHRJobEndpoint(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/hr-jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processing"`)

	rec = httptest.NewRecorder()
	router(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/hr-jobs/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
