package queryplan

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
)

// Confidence gates applied by the query router.
const (
	ConfidenceProceed = 0.8
	ConfidenceWarn    = 0.5
)

// fallbackConfidence is assigned to regex-parsed translations.
const fallbackConfidence = 0.5

// TermMatcher resolves free-text terms against the taxonomy; the taxonomy
// mapper satisfies it.
type TermMatcher interface {
	Match(ctx domain.Context, kind domain.TaxonomyKind, term string) (domain.TaxonomyMatch, error)
}

// Translator is the NL → filter tree stage.
type Translator struct {
	ai       domain.AIClient
	registry *prompts.Registry
	matcher  TermMatcher
	cfg      config.Config
}

// NewTranslator constructs a Translator. matcher may be nil; the fallback
// parser then skips taxonomy term resolution.
func NewTranslator(client domain.AIClient, registry *prompts.Registry, matcher TermMatcher, cfg config.Config) *Translator {
	return &Translator{ai: client, registry: registry, matcher: matcher, cfg: cfg}
}

// Translate runs the LLM translation and falls back to the regex parser
// when the model is unreachable or returns an unusable tree.
func (t *Translator) Translate(ctx domain.Context, query string) (domain.Translation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Translation{}, fmt.Errorf("op=queryplan.Translate: %w: empty query", domain.ErrInvalidArgument)
	}

	tr, err := t.llmTranslate(ctx, query)
	if err != nil {
		slog.Warn("query translation fell back to regex parser",
			slog.String("query", query),
			slog.Any("error", err))
		tr = t.fallback(ctx, query)
	}
	return clamp(tr), nil
}

func (t *Translator) llmTranslate(ctx domain.Context, query string) (domain.Translation, error) {
	prompt, err := t.registry.Render(prompts.QueryTranslate, map[string]any{
		"Fields":   strings.Join(KnownFields(), ", "),
		"Question": query,
	})
	if err != nil {
		return domain.Translation{}, err
	}
	res, err := t.ai.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		Model:       t.cfg.LLMModel,
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return domain.Translation{}, err
	}
	var tr domain.Translation
	if err := ai.ExtractJSON(res.Text, &tr); err != nil {
		return domain.Translation{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if !validQueryType(tr.QueryType) {
		return domain.Translation{}, fmt.Errorf("%w: query_type %q", domain.ErrSchemaInvalid, tr.QueryType)
	}
	// Drop filters on fields outside the dictionary; they would fail the
	// generator anyway. The terms stay visible as unknown_terms.
	for field := range tr.Filters {
		if _, ok := fieldDictionary[field]; !ok {
			tr.UnknownTerms = append(tr.UnknownTerms, field)
			delete(tr.Filters, field)
		}
	}
	return tr, nil
}

func validQueryType(qt domain.QueryType) bool {
	switch qt {
	case domain.QueryStructured, domain.QuerySemantic, domain.QueryHybrid, domain.QueryClarification:
		return true
	}
	return false
}

// clamp enforces output bounds regardless of which path produced the tree.
func clamp(tr domain.Translation) domain.Translation {
	if tr.Confidence < 0 {
		tr.Confidence = 0
	}
	if tr.Confidence > 1 {
		tr.Confidence = 1
	}
	if tr.Limit > llmMaxLimit {
		tr.Limit = llmMaxLimit
	}
	if tr.Limit < 0 {
		tr.Limit = 0
	}
	if tr.Offset < 0 {
		tr.Offset = 0
	}
	return tr
}

// Gate applies the router's confidence policy: below the warn threshold the
// translation degrades to a clarification request.
func Gate(tr domain.Translation) domain.Translation {
	if tr.QueryType == domain.QueryClarification {
		return tr
	}
	if tr.Confidence < ConfidenceWarn {
		tr.QueryType = domain.QueryClarification
		if tr.ClarificationQuestion == "" {
			tr.ClarificationQuestion = "Could you restate the request with the role, skills, or location you need? / Μπορείτε να επαναδιατυπώσετε με τη θέση, τις δεξιότητες ή την περιοχή που χρειάζεστε;"
		}
	}
	return tr
}
