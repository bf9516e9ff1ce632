// Package matcher is the relaxed-criteria fallback for queries whose
// strict SQL path returned nothing: it scores candidates in the database
// against the subset of requirements they satisfy and annotates the best
// ones with short LLM evaluations.
package matcher

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// topEvaluated is how many scored candidates get an LLM comment; the rest
// keep only their SQL-derived partial match.
const topEvaluated = 5

// defaultScoreLimit bounds how many candidates the scoring function returns
// when the caller does not say.
const defaultScoreLimit = 20

// Matcher orchestrates relaxed matching.
type Matcher struct {
	repo     domain.CandidateRepository
	ai       domain.AIClient
	registry *prompts.Registry
	cfg      config.Config
}

// New constructs a Matcher.
func New(repo domain.CandidateRepository, client domain.AIClient, registry *prompts.Registry, cfg config.Config) *Matcher {
	return &Matcher{repo: repo, ai: client, registry: registry, cfg: cfg}
}

// RequirementsFromFilters flattens the translator's filter tree into the
// compact requirements structure the database scoring function consumes.
func RequirementsFromFilters(filters map[string]domain.FilterCondition) map[string]any {
	reqs := map[string]any{}
	appendList := func(key string, v any) {
		list, _ := reqs[key].([]any)
		reqs[key] = append(list, v)
	}

	for field, f := range filters {
		switch field {
		case "role":
			reqs["role"] = f.Value
		case "skills":
			appendList("skills", f.Value)
		case "software":
			appendList("software", f.Value)
		case "certifications":
			appendList("certifications", f.Value)
		case "city", "location":
			reqs["city"] = f.Value
		case "nationality":
			reqs["nationality"] = f.Value
		case "languages":
			appendList("languages", f.Value)
		case "driving_licenses":
			if f.Operator == "exists" {
				reqs["driving_license_required"] = true
			} else {
				appendList("driving_licenses", f.Value)
			}
		case "education", "education_level":
			reqs["education_level"] = f.Value
		case "experience_years":
			switch f.Operator {
			case "gt", "gte":
				reqs["min_experience_years"] = f.Value
			case "lt", "lte":
				reqs["max_experience_years"] = f.Value
			case "between":
				if pair, ok := f.Value.([]any); ok && len(pair) == 2 {
					reqs["min_experience_years"] = pair[0]
					reqs["max_experience_years"] = pair[1]
				}
			case "eq":
				reqs["min_experience_years"] = f.Value
			}
		case "age":
			switch f.Operator {
			case "gt", "gte":
				reqs["min_age"] = f.Value
			case "lt", "lte":
				reqs["max_age"] = f.Value
			}
		}
	}
	return reqs
}

// Match scores candidates against the relaxed requirements and returns the
// unified result. The comment pass is best-effort; a failing LLM never
// degrades the SQL-derived scores.
func (m *Matcher) Match(ctx domain.Context, query string, tr domain.Translation, limit int) (domain.MatchResult, error) {
	if limit <= 0 {
		limit = defaultScoreLimit
	}

	reqs := RequirementsFromFilters(tr.Filters)
	if len(reqs) == 0 {
		sq := tr.SemanticQuery
		if sq == "" {
			sq = query
		}
		reqs["free_text"] = sq
	}

	matches, err := m.repo.RelaxedMatch(ctx, reqs, limit)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("op=matcher.Match: %w", err)
	}
	observability.RelaxedMatchesTotal.Inc()

	if len(matches) > 0 {
		m.annotate(ctx, query, reqs, matches)
	}

	return domain.MatchResult{
		Requirements: reqs,
		Candidates:   matches,
		TotalScored:  len(matches),
	}, nil
}

// annotate asks the cheap model for one-sentence evaluations of the top
// scored candidates.
func (m *Matcher) annotate(ctx domain.Context, query string, reqs map[string]any, matches []domain.CandidateMatch) {
	top := matches
	if len(top) > topEvaluated {
		top = top[:topEvaluated]
	}

	reqsJSON, err := json.Marshal(reqs)
	if err != nil {
		return
	}
	topJSON, err := json.Marshal(top)
	if err != nil {
		return
	}
	language := "English"
	if textx.IsGreek(query) {
		language = "Greek"
	}
	prompt, err := m.registry.Render(prompts.MatchComment, map[string]any{
		"Requirements": string(reqsJSON),
		"Candidates":   string(topJSON),
		"Language":     language,
	})
	if err != nil {
		slog.Warn("match comment prompt render failed", slog.Any("error", err))
		return
	}

	res, err := m.ai.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		Model:       m.cfg.LLMCheapModel,
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		slog.Warn("match comment generation failed", slog.Any("error", err))
		return
	}

	var out struct {
		Comments map[string]string `json:"comments"`
	}
	if err := ai.ExtractJSON(res.Text, &out); err != nil {
		slog.Warn("match comment output unparseable", slog.Any("error", err))
		return
	}
	for i := range top {
		if c, ok := out.Comments[matches[i].CandidateID]; ok {
			matches[i].Comment = c
		}
	}
}
