package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/internal/service/queryplan"
)

// searchDefaultK is the hit count for semantic searches without an explicit
// limit.
const searchDefaultK = 20

// QueryTranslator turns a natural-language query into a filter tree.
type QueryTranslator interface {
	Translate(ctx domain.Context, query string) (domain.Translation, error)
}

// RelaxedMatcher scores candidates when the strict path found nothing.
type RelaxedMatcher interface {
	Match(ctx domain.Context, query string, tr domain.Translation, limit int) (domain.MatchResult, error)
}

// HRAnalyzer produces HR reports synchronously or as queued jobs.
type HRAnalyzer interface {
	Analyze(ctx domain.Context, query string, requirements map[string]any, candidateIDs []string) (domain.HRReport, error)
	StartAsync(ctx domain.Context, query string, sql domain.SQLQuery, candidateIDs []string) (string, error)
}

// QueryRequest is one recruiter query as received by the API.
type QueryRequest struct {
	Query          string `json:"query"`
	Execute        bool   `json:"execute"`
	UseJobMatching bool   `json:"use_job_matching"`
	HRAnalysis     string `json:"hr_analysis,omitempty"` // sync|async
	Limit          int    `json:"limit,omitempty"`
}

// QueryResponse is the unified query result.
type QueryResponse struct {
	RequestID             string              `json:"request_id,omitempty"`
	Query                 string              `json:"query"`
	Translation           domain.Translation  `json:"translation"`
	SQL                   *domain.SQLQuery    `json:"sql,omitempty"`
	Cached                bool                `json:"cached"`
	ClarificationQuestion string              `json:"clarification_question,omitempty"`
	Results               []map[string]any    `json:"results,omitempty"`
	Hits                  []domain.SearchHit  `json:"hits,omitempty"`
	ResultCount           int                 `json:"result_count"`
	Match                 *domain.MatchResult `json:"job_matching,omitempty"`
	FallbackUsed          bool                `json:"fallback_used"`
	HRReport              *domain.HRReport    `json:"hr_analysis,omitempty"`
	HRJobID               string              `json:"hr_job_id,omitempty"`
	LatencyMS             int64               `json:"latency_ms"`
}

// QueryService routes recruiter queries through translation, generation,
// execution, relaxed matching, and HR analysis.
type QueryService struct {
	Translator QueryTranslator
	Repo       domain.CandidateRepository
	Search     domain.SearchIndex
	AI         domain.AIClient
	Cache      domain.QueryCache
	Matcher    RelaxedMatcher
	Analyzer   HRAnalyzer
	Jobs       domain.HRJobStore
}

// Query handles one request. Translation-only calls (execute=false) are
// served from the 24h cache; execution always re-runs against live data.
func (s *QueryService) Query(ctx domain.Context, req QueryRequest) (QueryResponse, error) {
	started := time.Now()
	resp, err := s.query(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.RequestID = observability.RequestIDFromContext(ctx)
	resp.ResultCount = len(resp.Results) + len(resp.Hits)
	resp.FallbackUsed = resp.Translation.FallbackUsed || resp.Match != nil
	resp.LatencyMS = time.Since(started).Milliseconds()
	return resp, nil
}

func (s *QueryService) query(ctx domain.Context, req QueryRequest) (QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return QueryResponse{}, fmt.Errorf("%w: query required", domain.ErrInvalidArgument)
	}

	if !req.Execute {
		if cached, ok, err := s.Cache.Get(ctx, query); err == nil && ok {
			observability.QueriesTotal.WithLabelValues(string(cached.Translation.QueryType), "true").Inc()
			return QueryResponse{
				Query:                 query,
				Translation:           cached.Translation,
				SQL:                   sqlOrNil(cached.SQL),
				Cached:                true,
				ClarificationQuestion: cached.Translation.ClarificationQuestion,
			}, nil
		} else if err != nil {
			slog.Warn("query cache read failed", slog.Any("error", err))
		}
	}

	tr, err := s.Translator.Translate(ctx, query)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("op=usecase.Query: %w", err)
	}
	tr = queryplan.Gate(tr)
	if req.Limit > 0 {
		tr.Limit = req.Limit
	}

	resp := QueryResponse{Query: query, Translation: tr}
	observability.QueriesTotal.WithLabelValues(string(tr.QueryType), "false").Inc()

	if tr.QueryType == domain.QueryClarification {
		resp.ClarificationQuestion = tr.ClarificationQuestion
		return resp, nil
	}

	var sql domain.SQLQuery
	if tr.QueryType == domain.QueryStructured || tr.QueryType == domain.QueryHybrid {
		sql, err = queryplan.Generate(tr)
		if err != nil {
			return QueryResponse{}, fmt.Errorf("op=usecase.Query: %w", err)
		}
		resp.SQL = &sql
	}

	s.cachePut(ctx, query, tr, sql)

	if !req.Execute {
		return resp, nil
	}

	if resp.SQL != nil {
		resp.Results, err = s.Repo.ExecuteSearch(ctx, sql)
		if err != nil {
			if !req.UseJobMatching {
				return QueryResponse{}, fmt.Errorf("op=usecase.Query: %w", err)
			}
			// With job matching opted in, a failing strict query degrades to
			// the relaxed matcher instead of sinking the request.
			slog.Warn("structured search failed, continuing with relaxed matching",
				slog.Any("error", err))
			resp.Results = nil
		}
	}
	if tr.QueryType == domain.QuerySemantic || (tr.QueryType == domain.QueryHybrid && tr.SemanticQuery != "") {
		resp.Hits, err = s.semanticSearch(ctx, tr)
		if err != nil {
			// Search-engine degradation must not sink a query that already has
			// relational results.
			slog.Warn("semantic search failed", slog.Any("error", err))
			if resp.SQL == nil {
				return QueryResponse{}, fmt.Errorf("op=usecase.Query: %w", err)
			}
		}
	}

	if len(resp.Results) == 0 && len(resp.Hits) == 0 && req.UseJobMatching {
		match, err := s.Matcher.Match(ctx, query, tr, tr.Limit)
		if err != nil {
			return QueryResponse{}, fmt.Errorf("op=usecase.Query: %w", err)
		}
		resp.Match = &match
	}

	if req.HRAnalysis != "" {
		if err := s.runHRAnalysis(ctx, req, &resp, sql); err != nil {
			return QueryResponse{}, err
		}
	}
	return resp, nil
}

func (s *QueryService) semanticSearch(ctx domain.Context, tr domain.Translation) ([]domain.SearchHit, error) {
	q := tr.SemanticQuery
	k := tr.Limit
	if k <= 0 {
		k = searchDefaultK
	}
	vectors, err := s.AI.Embed(ctx, []string{q})
	if err != nil || len(vectors) == 0 {
		// Text search still works without the dense half.
		return s.Search.TextSearch(ctx, q, k)
	}
	return s.Search.HybridSearch(ctx, q, vectors[0], k)
}

func (s *QueryService) runHRAnalysis(ctx domain.Context, req QueryRequest, resp *QueryResponse, sql domain.SQLQuery) error {
	ids := candidateIDs(resp)
	switch req.HRAnalysis {
	case "async":
		jobID, err := s.Analyzer.StartAsync(ctx, resp.Query, sql, ids)
		if err != nil {
			return fmt.Errorf("op=usecase.Query: %w", err)
		}
		resp.HRJobID = jobID
	case "sync":
		requirements := map[string]any{}
		if sql.Summary != "" {
			requirements["filter_summary"] = sql.Summary
		}
		report, err := s.Analyzer.Analyze(ctx, resp.Query, requirements, ids)
		if err != nil {
			return fmt.Errorf("op=usecase.Query: %w", err)
		}
		resp.HRReport = &report
		observability.HRJobsTotal.WithLabelValues("sync", "completed").Inc()
	default:
		return fmt.Errorf("%w: hr_analysis must be sync or async", domain.ErrInvalidArgument)
	}
	return nil
}

// candidateIDs collects the ids the HR analyzer should look at, in result
// order: relational rows first, then search hits, then relaxed matches.
func candidateIDs(resp *QueryResponse) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, row := range resp.Results {
		if id, ok := row["id"].(string); ok {
			add(id)
		}
	}
	for _, hit := range resp.Hits {
		add(hit.CandidateID)
	}
	if resp.Match != nil {
		for _, c := range resp.Match.Candidates {
			add(c.CandidateID)
		}
	}
	return ids
}

func (s *QueryService) cachePut(ctx domain.Context, query string, tr domain.Translation, sql domain.SQLQuery) {
	err := s.Cache.Put(ctx, query, domain.CachedTranslation{
		Query:       query,
		Translation: tr,
		SQL:         sql,
		CachedAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("query cache write failed", slog.Any("error", err))
	}
}

func sqlOrNil(sql domain.SQLQuery) *domain.SQLQuery {
	if sql.Statement == "" {
		return nil
	}
	return &sql
}

// HRJob returns the state of one async analysis job.
func (s *QueryService) HRJob(ctx domain.Context, id string) (domain.HRJob, error) {
	if id == "" {
		return domain.HRJob{}, fmt.Errorf("%w: job id required", domain.ErrInvalidArgument)
	}
	return s.Jobs.Get(ctx, id)
}
