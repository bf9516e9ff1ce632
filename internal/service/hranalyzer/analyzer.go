// Package hranalyzer produces the HR intelligence report: an LLM ranking
// and evaluation of matched candidates against the recruiter's request,
// synchronously or as a queued job polled by id.
package hranalyzer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// maxProfiles bounds how many enriched profiles are fed to the model.
const maxProfiles = 10

// fallbackTop is how many candidates the parse-failure fallback report
// keeps.
const fallbackTop = 5

// Categorization thresholds: top ranks, High suitability, or a strong
// match percentage put a candidate in the interview bucket.
const (
	interviewTopRanks = 5
	interviewMinMatch = 70.0
)

// Analyzer runs HR analyses.
type Analyzer struct {
	repo     domain.CandidateRepository
	ai       domain.AIClient
	registry *prompts.Registry
	jobs     domain.HRJobStore
	queue    domain.Queue
	cfg      config.Config
	now      func() time.Time
}

// New constructs an Analyzer. jobs and queue may be nil when only the
// synchronous path is used.
func New(repo domain.CandidateRepository, client domain.AIClient, registry *prompts.Registry, jobs domain.HRJobStore, queue domain.Queue, cfg config.Config) *Analyzer {
	return &Analyzer{repo: repo, ai: client, registry: registry, jobs: jobs, queue: queue, cfg: cfg, now: time.Now}
}

// Analyze produces the report synchronously. An unparseable model response
// degrades to a fallback report rather than an error; only infrastructure
// failures propagate.
func (a *Analyzer) Analyze(ctx domain.Context, query string, requirements map[string]any, candidateIDs []string) (domain.HRReport, error) {
	if len(candidateIDs) > maxProfiles {
		candidateIDs = candidateIDs[:maxProfiles]
	}

	language, code := "English", "en"
	if textx.IsGreek(query) {
		language, code = "Greek", "el"
	}

	if len(candidateIDs) == 0 {
		return a.emptyReport(query, code), nil
	}

	profiles, err := a.repo.EnrichedProfiles(ctx, candidateIDs)
	if err != nil {
		return domain.HRReport{}, fmt.Errorf("op=hranalyzer.Analyze: %w", err)
	}
	if len(profiles) == 0 {
		return a.emptyReport(query, code), nil
	}

	report, err := a.llmReport(ctx, query, requirements, profiles, language, code)
	if err != nil {
		slog.Warn("hr analysis degraded to fallback report",
			slog.String("query", query),
			slog.Any("error", err))
		report = a.fallbackReport(query, code, profiles)
	}

	report.GeneratedAt = a.now().UTC()
	categorize(&report)
	return report, nil
}

func (a *Analyzer) llmReport(ctx domain.Context, query string, requirements map[string]any, profiles []map[string]any, language, code string) (domain.HRReport, error) {
	reqsJSON, err := json.Marshal(requirements)
	if err != nil {
		return domain.HRReport{}, err
	}
	profilesJSON, err := json.Marshal(profiles)
	if err != nil {
		return domain.HRReport{}, err
	}
	prompt, err := a.registry.Render(prompts.HRAnalyze, map[string]any{
		"Request":      query,
		"Requirements": string(reqsJSON),
		"Candidates":   string(profilesJSON),
		"Language":     language,
		"LanguageCode": code,
	})
	if err != nil {
		return domain.HRReport{}, err
	}

	res, err := a.ai.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		Model:       a.cfg.LLMModel,
		MaxTokens:   4096,
		Temperature: 0.2,
	})
	if err != nil {
		return domain.HRReport{}, err
	}

	var report domain.HRReport
	if err := ai.ExtractJSON(res.Text, &report); err != nil {
		return domain.HRReport{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if len(report.Candidates) == 0 {
		return domain.HRReport{}, fmt.Errorf("%w: report without candidates", domain.ErrSchemaInvalid)
	}
	return report, nil
}

// emptyReport is returned when the search produced no candidates to
// analyze.
func (a *Analyzer) emptyReport(query, code string) domain.HRReport {
	outcome := "No candidates in the database matched the request."
	if code == "el" {
		outcome = "Κανένας υποψήφιος στη βάση δεν ταιριάζει με το αίτημα."
	}
	return domain.HRReport{
		RequestAnalysis: domain.RequestAnalysis{Summary: query, Language: code},
		QueryOutcome:    outcome,
		Candidates:      []domain.RankedCandidate{},
		Recommendation:  outcome,
		GeneratedAt:     a.now().UTC(),
	}
}

// fallbackReport keeps the pipeline useful when the model's JSON cannot be
// parsed: the top candidates pass through with default medium suitability.
func (a *Analyzer) fallbackReport(query, code string, profiles []map[string]any) domain.HRReport {
	note := "Detailed analysis was unavailable; candidates are listed in database match order."
	if code == "el" {
		note = "Η αναλυτική αξιολόγηση δεν ήταν διαθέσιμη. Οι υποψήφιοι παρατίθενται με τη σειρά της βάσης."
	}

	n := len(profiles)
	if n > fallbackTop {
		n = fallbackTop
	}
	candidates := make([]domain.RankedCandidate, 0, n)
	for i := 0; i < n; i++ {
		candidates = append(candidates, domain.RankedCandidate{
			CandidateID:        str(profiles[i]["id"]),
			FullName:           str(profiles[i]["full_name"]),
			Rank:               i + 1,
			OverallSuitability: "Medium",
		})
	}
	return domain.HRReport{
		RequestAnalysis: domain.RequestAnalysis{Summary: query, Language: code},
		QueryOutcome:    note,
		Candidates:      candidates,
		Recommendation:  note,
		FallbackUsed:    true,
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// categorize tags each ranked candidate for the interview pipeline.
func categorize(report *domain.HRReport) {
	for i := range report.Candidates {
		c := &report.Candidates[i]
		if c.Rank > 0 && c.Rank <= interviewTopRanks ||
			c.OverallSuitability == "High" ||
			c.MatchPercentage >= interviewMinMatch {
			c.Category = "interview"
		} else {
			c.Category = "consider"
		}
	}
}

// StartAsync registers a processing job, enqueues the analysis task, and
// returns the job id the caller polls.
func (a *Analyzer) StartAsync(ctx domain.Context, query string, sql domain.SQLQuery, candidateIDs []string) (string, error) {
	jobID := ulid.Make().String()
	if err := a.jobs.Create(ctx, domain.HRJob{ID: jobID}); err != nil {
		return "", fmt.Errorf("op=hranalyzer.StartAsync: %w", err)
	}
	if _, err := a.queue.EnqueueHRAnalysis(ctx, domain.HRTaskPayload{
		HRJobID:      jobID,
		Query:        query,
		Requirements: sql,
		CandidateIDs: candidateIDs,
	}); err != nil {
		_ = a.jobs.Fail(ctx, jobID, "enqueue failed")
		return "", fmt.Errorf("op=hranalyzer.StartAsync: %w", err)
	}
	observability.HRJobsTotal.WithLabelValues("async", "enqueued").Inc()
	return jobID, nil
}

// ProcessTask is the queue worker entrypoint for one async analysis.
func (a *Analyzer) ProcessTask(ctx domain.Context, payload domain.HRTaskPayload) error {
	requirements := map[string]any{}
	if payload.Requirements.Summary != "" {
		requirements["filter_summary"] = payload.Requirements.Summary
	}
	report, err := a.Analyze(ctx, payload.Query, requirements, payload.CandidateIDs)
	if err != nil {
		observability.HRJobsTotal.WithLabelValues("async", "failed").Inc()
		if failErr := a.jobs.Fail(ctx, payload.HRJobID, err.Error()); failErr != nil {
			slog.Error("hr job fail-mark failed", slog.String("hr_job_id", payload.HRJobID), slog.Any("error", failErr))
		}
		return fmt.Errorf("op=hranalyzer.ProcessTask: %w", err)
	}
	if err := a.jobs.Complete(ctx, payload.HRJobID, &report); err != nil {
		return fmt.Errorf("op=hranalyzer.ProcessTask: %w", err)
	}
	observability.HRJobsTotal.WithLabelValues("async", "completed").Inc()
	return nil
}
