package domain

import "time"

// QueryType classifies how a translated query should be executed.
type QueryType string

// Query types emitted by the translator.
const (
	QueryStructured    QueryType = "structured"
	QuerySemantic      QueryType = "semantic"
	QueryHybrid        QueryType = "hybrid"
	QueryClarification QueryType = "clarification"
)

// FilterCondition is one leaf of the filter tree: an operator applied to a
// value for a known field.
type FilterCondition struct {
	Operator string `json:"operator"` // eq|gt|gte|lt|lte|between|contains|exists
	Value    any    `json:"value"`
}

// Translation is the output of the NL query translator (the filter tree
// plus execution hints). Limit is already clamped to 100 when it came from
// the LLM.
type Translation struct {
	QueryType             QueryType                  `json:"query_type"`
	Confidence            float64                    `json:"confidence"`
	Filters               map[string]FilterCondition `json:"filters"`
	Sort                  string                     `json:"sort,omitempty"`
	Limit                 int                        `json:"limit,omitempty"`
	Offset                int                        `json:"offset,omitempty"`
	SemanticQuery         string                     `json:"semantic_query,omitempty"`
	ClarificationQuestion string                     `json:"clarification_question,omitempty"`
	UnknownTerms          []string                   `json:"unknown_terms,omitempty"`
	FallbackUsed          bool                       `json:"fallback_used,omitempty"`
}

// SQLQuery is a generated parameterized statement with its ordered
// parameter list and a human-readable filter summary.
type SQLQuery struct {
	Statement string `json:"statement"`
	Params    []any  `json:"params"`
	Summary   string `json:"summary"`
}

// MatchLevel grades a relaxed-matcher candidate.
type MatchLevel string

// Match levels.
const (
	MatchHigh   MatchLevel = "High"
	MatchMedium MatchLevel = "Medium"
	MatchLow    MatchLevel = "Low"
)

// CandidateMatch is one scored candidate from the relaxed matcher.
type CandidateMatch struct {
	CandidateID     string     `json:"candidate_id"`
	FullName        string     `json:"full_name"`
	MatchLevel      MatchLevel `json:"match_level"`
	MatchPercentage float64    `json:"match_percentage"`
	Matched         []string   `json:"matched,omitempty"`
	Missing         []string   `json:"missing,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	Recommendation  string     `json:"recommendation"` // interview|consider|skip
}

// MatchResult is the unified relaxed-matching outcome.
type MatchResult struct {
	Requirements map[string]any   `json:"requirements,omitempty"`
	Candidates   []CandidateMatch `json:"candidates"`
	TotalScored  int              `json:"total_scored"`
}

// HR report schema (§ HR intelligence analyzer).

// RequestAnalysis restates what the user asked for.
type RequestAnalysis struct {
	Summary       string   `json:"summary"`
	KeyCriteria   []string `json:"key_criteria,omitempty"`
	Language      string   `json:"language,omitempty"` // el|en
	PositionTitle string   `json:"position_title,omitempty"`
}

// RankedCandidate is one candidate in the HR report ranking.
type RankedCandidate struct {
	CandidateID        string   `json:"candidate_id"`
	FullName           string   `json:"full_name"`
	Rank               int      `json:"rank"`
	OverallSuitability string   `json:"overall_suitability"` // High|Medium|Low
	MatchPercentage    float64  `json:"match_percentage,omitempty"`
	Evidence           []string `json:"evidence,omitempty"`
	Gaps               []string `json:"gaps,omitempty"`
	Risks              []string `json:"risks,omitempty"`
	InterviewFocus     []string `json:"interview_focus,omitempty"`
	Category           string   `json:"category,omitempty"` // interview|consider
}

// HRReport is the analyzer's structured output.
type HRReport struct {
	RequestAnalysis   RequestAnalysis   `json:"request_analysis"`
	QueryOutcome      string            `json:"query_outcome"`
	CriteriaExpansion string            `json:"criteria_expansion,omitempty"`
	Candidates        []RankedCandidate `json:"candidates"`
	Recommendation    string            `json:"hr_recommendation"`
	FallbackUsed      bool              `json:"fallback_used,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// HRJobStatus tracks an async HR analysis job.
type HRJobStatus string

// Async HR job states.
const (
	HRJobProcessing HRJobStatus = "processing"
	HRJobCompleted  HRJobStatus = "completed"
	HRJobFailed     HRJobStatus = "failed"
)

// HRJob is the stored state of one async analysis.
type HRJob struct {
	ID        string      `json:"id"`
	Status    HRJobStatus `json:"status"`
	Report    *HRReport   `json:"hr_analysis,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CachedTranslation is the query-cache value: the translation and light
// metadata, never executed result rows.
type CachedTranslation struct {
	Query       string      `json:"query"`
	Translation Translation `json:"translation"`
	SQL         SQLQuery    `json:"sql"`
	CachedAt    time.Time   `json:"cached_at"`
}

// SearchDocument is the denormalized per-candidate view held by the search
// engine, regenerated fully on each write.
type SearchDocument struct {
	CandidateID    string          `json:"candidate_id"`
	FullName       string          `json:"full_name"`
	FullNameFolded string          `json:"full_name_folded"`
	Location       string          `json:"location,omitempty"`
	Skills         []SearchSkill   `json:"skills,omitempty"`
	Experience     []SearchJob     `json:"experience,omitempty"`
	Languages      []Language      `json:"languages,omitempty"`
	Certifications []string        `json:"certifications,omitempty"`
	Training       []string        `json:"training,omitempty"`
	Licenses       []string        `json:"driving_licenses,omitempty"`
	Embedding      []float32       `json:"cv_embedding,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SearchSkill pairs a skill name with its canonical id for filtering.
type SearchSkill struct {
	Name        string `json:"name"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// SearchJob is one experience item in the search document.
type SearchJob struct {
	Title          string `json:"title"`
	Company        string `json:"company,omitempty"`
	Description    string `json:"description,omitempty"`
	DurationMonths int    `json:"duration_months"`
}

// SearchHit is one scored document from the search engine.
type SearchHit struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	FullName    string  `json:"full_name,omitempty"`
}
