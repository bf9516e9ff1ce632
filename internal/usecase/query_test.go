package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
)

type fakeCache struct {
	entries map[string]domain.CachedTranslation
	puts    int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]domain.CachedTranslation{}} }

func (f *fakeCache) Get(_ domain.Context, query string) (domain.CachedTranslation, bool, error) {
	ct, ok := f.entries[query]
	return ct, ok, nil
}
func (f *fakeCache) Put(_ domain.Context, query string, ct domain.CachedTranslation) error {
	f.entries[query] = ct
	f.puts++
	return nil
}

type fakeTranslator struct {
	tr    domain.Translation
	err   error
	calls int
}

func (f *fakeTranslator) Translate(domain.Context, string) (domain.Translation, error) {
	f.calls++
	return f.tr, f.err
}

type fakeRepoQ struct {
	gotSQL domain.SQLQuery
	rows   []map[string]any
	err    error
}

func (f *fakeRepoQ) WriteProfile(domain.Context, domain.CandidateProfile, []domain.UnmatchedItem, []domain.QualityWarning) (domain.WriteOutcome, error) {
	return domain.WriteOutcome{}, nil
}
func (f *fakeRepoQ) ExecuteSearch(_ domain.Context, q domain.SQLQuery) ([]map[string]any, error) {
	f.gotSQL = q
	return f.rows, f.err
}
func (f *fakeRepoQ) EnrichedProfiles(domain.Context, []string) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeRepoQ) RelaxedMatch(domain.Context, map[string]any, int) ([]domain.CandidateMatch, error) {
	return nil, nil
}
func (f *fakeRepoQ) ActiveProfiles(domain.Context) ([]domain.CandidateProfile, error) {
	return nil, nil
}

type fakeSearch struct {
	hybridQuery string
	hits        []domain.SearchHit
	textCalls   int
}

func (f *fakeSearch) EnsureIndex(domain.Context) error                         { return nil }
func (f *fakeSearch) IndexCandidate(domain.Context, domain.SearchDocument) error { return nil }
func (f *fakeSearch) BulkIndex(domain.Context, []domain.SearchDocument) error  { return nil }
func (f *fakeSearch) BeginReindex(domain.Context) (string, error)              { return "", nil }
func (f *fakeSearch) BulkIndexInto(domain.Context, string, []domain.SearchDocument) error {
	return nil
}
func (f *fakeSearch) PromoteIndex(domain.Context, string) error { return nil }
func (f *fakeSearch) KNNSearch(domain.Context, []float32, int, map[string]any) ([]domain.SearchHit, error) {
	return nil, nil
}
func (f *fakeSearch) TextSearch(domain.Context, string, int) ([]domain.SearchHit, error) {
	f.textCalls++
	return f.hits, nil
}
func (f *fakeSearch) HybridSearch(_ domain.Context, query string, _ []float32, _ int) ([]domain.SearchHit, error) {
	f.hybridQuery = query
	return f.hits, nil
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) Complete(domain.Context, domain.CompletionRequest) (domain.CompletionResult, error) {
	return domain.CompletionResult{}, nil
}
func (f *fakeEmbedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, domain.EmbeddingDim)
	}
	return out, nil
}

type fakeMatcherQ struct {
	called bool
	result domain.MatchResult
}

func (f *fakeMatcherQ) Match(domain.Context, string, domain.Translation, int) (domain.MatchResult, error) {
	f.called = true
	return f.result, nil
}

type fakeAnalyzerQ struct {
	gotIDs  []string
	report  domain.HRReport
	jobID   string
	syncErr error
}

func (f *fakeAnalyzerQ) Analyze(_ domain.Context, _ string, _ map[string]any, ids []string) (domain.HRReport, error) {
	f.gotIDs = ids
	return f.report, f.syncErr
}
func (f *fakeAnalyzerQ) StartAsync(_ domain.Context, _ string, _ domain.SQLQuery, ids []string) (string, error) {
	f.gotIDs = ids
	return f.jobID, nil
}

type fakeJobsQ struct{ job domain.HRJob }

func (f *fakeJobsQ) Create(domain.Context, domain.HRJob) error { return nil }
func (f *fakeJobsQ) Get(domain.Context, string) (domain.HRJob, error) {
	return f.job, nil
}
func (f *fakeJobsQ) Complete(domain.Context, string, *domain.HRReport) error { return nil }
func (f *fakeJobsQ) Fail(domain.Context, string, string) error               { return nil }

func structuredTranslation() domain.Translation {
	return domain.Translation{
		QueryType:  domain.QueryStructured,
		Confidence: 0.9,
		Filters: map[string]domain.FilterCondition{
			"city": {Operator: "contains", Value: "Αθήνα"},
		},
	}
}

func newQueryService(tr domain.Translation) (*QueryService, *fakeTranslator, *fakeRepoQ, *fakeCache, *fakeMatcherQ, *fakeAnalyzerQ, *fakeSearch) {
	translator := &fakeTranslator{tr: tr}
	repo := &fakeRepoQ{}
	cache := newFakeCache()
	matcher := &fakeMatcherQ{}
	analyzer := &fakeAnalyzerQ{jobID: "job-7"}
	search := &fakeSearch{}
	svc := &QueryService{
		Translator: translator,
		Repo:       repo,
		Search:     search,
		AI:         &fakeEmbedder{},
		Cache:      cache,
		Matcher:    matcher,
		Analyzer:   analyzer,
		Jobs:       &fakeJobsQ{},
	}
	return svc, translator, repo, cache, matcher, analyzer, search
}

func TestQueryTranslateOnlyCachesTranslation(t *testing.T) {
	svc, translator, _, cache, _, _, _ := newQueryService(structuredTranslation())

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "λογιστές στην Αθήνα"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.SQL)
	assert.Contains(t, resp.SQL.Statement, "c.is_active")
	assert.Equal(t, 1, cache.puts)

	// Second translate-only call is served from the cache.
	resp2, err := svc.Query(context.Background(), QueryRequest{Query: "λογιστές στην Αθήνα"})
	require.NoError(t, err)
	assert.True(t, resp2.Cached)
	assert.Equal(t, 1, translator.calls)
}

func TestQueryExecuteBypassesCacheRead(t *testing.T) {
	svc, translator, repo, _, _, _, _ := newQueryService(structuredTranslation())
	repo.rows = []map[string]any{{"id": "a"}}

	_, err := svc.Query(context.Background(), QueryRequest{Query: "q"})
	require.NoError(t, err)
	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true})
	require.NoError(t, err)

	assert.Equal(t, 2, translator.calls, "execution always re-translates against live data")
	assert.False(t, resp.Cached)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, repo.gotSQL.Statement, "SELECT")
}

func TestQueryLowConfidenceAsksForClarification(t *testing.T) {
	tr := structuredTranslation()
	tr.Confidence = 0.3
	svc, _, repo, _, _, _, _ := newQueryService(tr)
	repo.err = errors.New("must not be called")

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "κάτι", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryClarification, resp.Translation.QueryType)
	assert.NotEmpty(t, resp.ClarificationQuestion)
	assert.Nil(t, resp.SQL)
}

func TestQueryEmptyResultFallsBackToRelaxedMatching(t *testing.T) {
	svc, _, _, _, matcher, _, _ := newQueryService(structuredTranslation())
	matcher.result = domain.MatchResult{
		Candidates:  []domain.CandidateMatch{{CandidateID: "c1", MatchPercentage: 60}},
		TotalScored: 1,
	}

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true, UseJobMatching: true})
	require.NoError(t, err)
	assert.True(t, matcher.called)
	require.NotNil(t, resp.Match)
	assert.Equal(t, 1, resp.Match.TotalScored)
	assert.True(t, resp.FallbackUsed)
}

func TestQuerySearchErrorFallsBackToRelaxedMatching(t *testing.T) {
	svc, _, repo, _, matcher, _, _ := newQueryService(structuredTranslation())
	repo.err = errors.New("relation does not exist")
	matcher.result = domain.MatchResult{
		Candidates:  []domain.CandidateMatch{{CandidateID: "c1", MatchPercentage: 55}},
		TotalScored: 1,
	}

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true, UseJobMatching: true})
	require.NoError(t, err)
	assert.True(t, matcher.called)
	require.NotNil(t, resp.Match)
	assert.True(t, resp.FallbackUsed)

	// Without the job-matching opt-in the execution error surfaces.
	svc2, _, repo2, _, matcher2, _, _ := newQueryService(structuredTranslation())
	repo2.err = errors.New("relation does not exist")
	_, err = svc2.Query(context.Background(), QueryRequest{Query: "q", Execute: true})
	require.Error(t, err)
	assert.False(t, matcher2.called)
}

func TestQueryResponseCarriesRequestMetadata(t *testing.T) {
	svc, _, repo, _, _, _, _ := newQueryService(structuredTranslation())
	repo.rows = []map[string]any{{"id": "a"}, {"id": "b"}}

	ctx := observability.ContextWithRequestID(context.Background(), "req-42")
	resp, err := svc.Query(ctx, QueryRequest{Query: "q", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, 2, resp.ResultCount)
	assert.False(t, resp.FallbackUsed)
	assert.GreaterOrEqual(t, resp.LatencyMS, int64(0))
}

func TestQueryNoFallbackWithoutOptIn(t *testing.T) {
	svc, _, _, _, matcher, _, _ := newQueryService(structuredTranslation())

	_, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true})
	require.NoError(t, err)
	assert.False(t, matcher.called)
}

func TestQuerySemanticUsesHybridSearch(t *testing.T) {
	tr := domain.Translation{
		QueryType:     domain.QuerySemantic,
		Confidence:    0.8,
		SemanticQuery: "άνθρωπος για τη λογιστική ομάδα",
	}
	svc, _, _, _, _, _, search := newQueryService(tr)
	search.hits = []domain.SearchHit{{CandidateID: "c1", Score: 0.9}}

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, tr.SemanticQuery, search.hybridQuery)
	require.Len(t, resp.Hits, 1)
	assert.Nil(t, resp.SQL)
}

func TestQuerySemanticDegradesToTextSearch(t *testing.T) {
	tr := domain.Translation{QueryType: domain.QuerySemantic, Confidence: 0.8, SemanticQuery: "κάτι"}
	svc, _, _, _, _, _, search := newQueryService(tr)
	svc.AI = &fakeEmbedder{err: errors.New("embeddings down")}

	_, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, 1, search.textCalls)
}

func TestQuerySyncHRAnalysisReceivesResultIDs(t *testing.T) {
	svc, _, repo, _, _, analyzer, _ := newQueryService(structuredTranslation())
	repo.rows = []map[string]any{{"id": "a"}, {"id": "b"}, {"id": "a"}}
	analyzer.report = domain.HRReport{Recommendation: "call a"}

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true, HRAnalysis: "sync"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, analyzer.gotIDs, "deduplicated, in result order")
	require.NotNil(t, resp.HRReport)
	assert.Equal(t, "call a", resp.HRReport.Recommendation)
}

func TestQueryAsyncHRAnalysisReturnsJobID(t *testing.T) {
	svc, _, repo, _, _, _, _ := newQueryService(structuredTranslation())
	repo.rows = []map[string]any{{"id": "a"}}

	resp, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true, HRAnalysis: "async"})
	require.NoError(t, err)
	assert.Equal(t, "job-7", resp.HRJobID)
	assert.Nil(t, resp.HRReport)
}

func TestQueryRejectsUnknownHRMode(t *testing.T) {
	svc, _, _, _, _, _, _ := newQueryService(structuredTranslation())
	_, err := svc.Query(context.Background(), QueryRequest{Query: "q", Execute: true, HRAnalysis: "batch"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	svc, _, _, _, _, _, _ := newQueryService(structuredTranslation())
	_, err := svc.Query(context.Background(), QueryRequest{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
