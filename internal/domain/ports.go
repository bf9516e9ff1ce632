package domain

import (
	"context"
	"time"
)

// Context aliases context.Context the way the rest of the codebase passes
// it through ports.
type Context = context.Context

// CompletionRequest is one LLM call. Model and decoding parameters are set
// per surface (structurer, arbitrator, translator, analyzer).
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Images carries inline image bytes for vision-capable calls (OCR).
	Images [][]byte
}

// CompletionResult carries the text plus usage accounting.
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// AIClient is the single capability set behind all four LLM surfaces plus
// the embedding service. Deterministic fakes implement it in tests.
type AIClient interface {
	Complete(ctx Context, req CompletionRequest) (CompletionResult, error)
	// Embed returns one fixed-dimension vector per input text. Callers chunk
	// inputs to EmbedBatchSize.
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// EmbedBatchSize is the embedding provider's maximum batch size.
const EmbedBatchSize = 96

// EmbeddingDim is the dense-vector dimension of the search index mapping.
const EmbeddingDim = 1024

// ObjectStore holds the content-addressed artifacts of each intake.
type ObjectStore interface {
	Get(ctx Context, key string) ([]byte, error)
	Put(ctx Context, key string, data []byte, contentType string) error
	// Stat returns object size and user metadata (correlation id binding).
	Stat(ctx Context, key string) (size int64, metadata map[string]string, err error)
}

// IntakeStateStore persists intake records keyed by correlation id.
// Updates are conditional: a regressive status transition is rejected with
// ErrStatusRegression, replaying the current status is a no-op, and
// disjoint fields of the stored record are preserved.
type IntakeStateStore interface {
	Create(ctx Context, rec IntakeRecord) error
	Get(ctx Context, correlationID string) (IntakeRecord, error)
	Update(ctx Context, correlationID string, upd StatusUpdate) (IntakeRecord, error)
	// ListStale returns correlation ids stuck in non-terminal states longer
	// than maxAge (stuck-intake sweeper).
	ListStale(ctx Context, maxAge time.Duration) ([]string, error)
}

// QueryCache memoizes query translations (never result rows) for 24h.
type QueryCache interface {
	Get(ctx Context, query string) (CachedTranslation, bool, error)
	Put(ctx Context, query string, ct CachedTranslation) error
}

// HRJobStore persists async HR analysis jobs.
type HRJobStore interface {
	Create(ctx Context, job HRJob) error
	Get(ctx Context, id string) (HRJob, error)
	Complete(ctx Context, id string, report *HRReport) error
	Fail(ctx Context, id string, reason string) error
}

// SearchIndex is the vector/text search engine port.
type SearchIndex interface {
	EnsureIndex(ctx Context) error
	IndexCandidate(ctx Context, doc SearchDocument) error
	BulkIndex(ctx Context, docs []SearchDocument) error
	// BeginReindex creates the next versioned physical index and returns its
	// name; the alias keeps serving the old index until PromoteIndex.
	BeginReindex(ctx Context) (string, error)
	BulkIndexInto(ctx Context, index string, docs []SearchDocument) error
	// PromoteIndex atomically repoints the alias at the given index.
	PromoteIndex(ctx Context, index string) error
	KNNSearch(ctx Context, vector []float32, k int, filter map[string]any) ([]SearchHit, error)
	TextSearch(ctx Context, query string, k int) ([]SearchHit, error)
	HybridSearch(ctx Context, query string, vector []float32, k int) ([]SearchHit, error)
}

// WriteOutcome reports the relational writer's result for one candidate.
type WriteOutcome struct {
	CandidateID  string
	Created      bool // false when an existing candidate was updated (dedup)
	Counts       StageCounts
	Verification WriteVerification
}

// CandidateRepository is the relational writer/reader port.
type CandidateRepository interface {
	// WriteProfile runs the full transactional write sequence and post-write
	// verification for one candidate.
	WriteProfile(ctx Context, p CandidateProfile, unmatched []UnmatchedItem, warnings []QualityWarning) (WriteOutcome, error)
	// ExecuteSearch runs a generated statement and returns row maps.
	ExecuteSearch(ctx Context, q SQLQuery) ([]map[string]any, error)
	// EnrichedProfiles returns full JSON profile views for the HR analyzer.
	EnrichedProfiles(ctx Context, candidateIDs []string) ([]map[string]any, error)
	// RelaxedMatch scores candidates against a requirements structure via
	// the scoring function in the database.
	RelaxedMatch(ctx Context, requirements map[string]any, limit int) ([]CandidateMatch, error)
	// ActiveProfiles streams all active candidates for bulk reindexing.
	ActiveProfiles(ctx Context) ([]CandidateProfile, error)
}

// TaxonomyAlias is one alias row loaded into the in-memory index.
type TaxonomyAlias struct {
	Kind        TaxonomyKind
	CanonicalID string
	Alias       string // already normalized (folded, collapsed)
	Display     string
}

// TaxonomyRepository reads the taxonomy tables.
type TaxonomyRepository interface {
	// LoadAliases returns all alias rows for the four taxonomy families
	// (names in both languages, aliases, abbreviations).
	LoadAliases(ctx Context) ([]TaxonomyAlias, error)
	// FuzzyMatch returns the single best trigram match for the term.
	FuzzyMatch(ctx Context, kind TaxonomyKind, term string) (canonicalID string, similarity float64, err error)
}

// IntakeTaskPayload is the queued intake pipeline task.
type IntakeTaskPayload struct {
	CorrelationID string `json:"correlation_id"`
	Bucket        string `json:"bucket"`
	ObjectKey     string `json:"object_key"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
}

// HRTaskPayload is the queued async HR analysis task.
type HRTaskPayload struct {
	HRJobID      string   `json:"hr_job_id"`
	Query        string   `json:"query"`
	Requirements SQLQuery `json:"requirements_sql"`
	CandidateIDs []string `json:"candidate_ids"`
}

// Queue publishes pipeline and HR analysis tasks.
type Queue interface {
	EnqueueIntake(ctx Context, payload IntakeTaskPayload) (string, error)
	EnqueueHRAnalysis(ctx Context, payload HRTaskPayload) (string, error)
}
