package taxonomy

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Cascade thresholds. A step only yields a confident match at or above its
// threshold; fuzzy and semantic record a suggestion down to suggestMin.
const (
	substringSim = 0.9
	fuzzyMin     = 0.75
	semanticMin  = 0.85
	suggestMin   = 0.60
)

// substringMinLen guards the substring step against two-letter terms
// matching everything.
const substringMinLen = 3

// Mapper resolves raw terms through the cascade. It is safe for concurrent
// use.
type Mapper struct {
	repo  domain.TaxonomyRepository
	ai    domain.AIClient
	cache *aliasCache

	embedMu sync.Mutex
	// embeddings per kind per canonical id, built lazily from the current
	// alias snapshot.
	embeds   map[domain.TaxonomyKind]map[string][]float32
	embedGen time.Time
}

// NewMapper constructs a Mapper with the given alias TTL.
func NewMapper(repo domain.TaxonomyRepository, client domain.AIClient, aliasTTL time.Duration) *Mapper {
	return &Mapper{
		repo:   repo,
		ai:     client,
		cache:  newAliasCache(repo, aliasTTL),
		embeds: make(map[domain.TaxonomyKind]map[string][]float32),
	}
}

// Match resolves one term. It never returns an error for a term that simply
// has no match; MatchNone is a valid outcome.
func (m *Mapper) Match(ctx domain.Context, kind domain.TaxonomyKind, term string) (domain.TaxonomyMatch, error) {
	normalized := textx.NormalizeKey(term)
	match := domain.TaxonomyMatch{Raw: term, Method: domain.MatchNone}
	if normalized == "" {
		return match, nil
	}

	idx, err := m.cache.snapshot(ctx)
	if err != nil {
		return match, fmt.Errorf("op=taxonomy.Match: %w", err)
	}
	aliases := idx[kind]

	// Step 1: exact alias.
	if a, ok := aliases[normalized]; ok {
		match.CanonicalID = a.CanonicalID
		match.Method = domain.MatchExact
		match.Similarity = 1.0
		observability.TaxonomyMatchesTotal.WithLabelValues(string(kind), string(match.Method)).Inc()
		return match, nil
	}

	// Step 2: substring containment either way, longest alias wins.
	if len([]rune(normalized)) >= substringMinLen {
		var best domain.TaxonomyAlias
		for alias, a := range aliases {
			if len([]rune(alias)) < substringMinLen {
				continue
			}
			if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
				if len(a.Alias) > len(best.Alias) {
					best = a
				}
			}
		}
		if best.CanonicalID != "" {
			match.CanonicalID = best.CanonicalID
			match.Method = domain.MatchSubstring
			match.Similarity = substringSim
			observability.TaxonomyMatchesTotal.WithLabelValues(string(kind), string(match.Method)).Inc()
			return match, nil
		}
	}

	// Step 3: trigram fuzzy in the database.
	canonicalID, sim, err := m.repo.FuzzyMatch(ctx, kind, normalized)
	switch {
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return match, fmt.Errorf("op=taxonomy.Match: %w", err)
	case err == nil && sim >= fuzzyMin:
		match.CanonicalID = canonicalID
		match.Method = domain.MatchFuzzy
		match.Similarity = sim
		observability.TaxonomyMatchesTotal.WithLabelValues(string(kind), string(match.Method)).Inc()
		return match, nil
	case err == nil && sim >= suggestMin:
		match.SuggestedID = canonicalID
		match.Method = domain.MatchFuzzySuggested
		match.Similarity = sim
	}

	// Step 4: semantic similarity against canonical entries.
	semID, semSim, err := m.semanticMatch(ctx, kind, term)
	if err != nil {
		// Semantic is best-effort; a dead embedding service must not block
		// ingestion. Keep the fuzzy suggestion if one exists.
		slog.Warn("semantic taxonomy match unavailable",
			slog.String("kind", string(kind)), slog.String("error", err.Error()))
		observability.TaxonomyMatchesTotal.WithLabelValues(string(kind), string(match.Method)).Inc()
		return match, nil
	}
	switch {
	case semSim >= semanticMin:
		match.CanonicalID = semID
		match.SuggestedID = ""
		match.Method = domain.MatchSemantic
		match.Similarity = semSim
	case semSim >= suggestMin && semSim > match.Similarity:
		match.SuggestedID = semID
		match.Method = domain.MatchSuggested
		match.Similarity = semSim
	}
	observability.TaxonomyMatchesTotal.WithLabelValues(string(kind), string(match.Method)).Inc()
	return match, nil
}

// MapProfile runs the cascade over every skill, software, certification, and
// experience role of the profile in place, and returns the items that ended
// without a confident match.
func (m *Mapper) MapProfile(ctx domain.Context, p *domain.CandidateProfile) ([]domain.UnmatchedItem, error) {
	var unmatched []domain.UnmatchedItem

	record := func(kind domain.TaxonomyKind, match domain.TaxonomyMatch) {
		if match.Method.Confident() {
			return
		}
		unmatched = append(unmatched, domain.UnmatchedItem{
			Kind:        kind,
			Value:       match.Raw,
			Normalized:  textx.NormalizeKey(match.Raw),
			SuggestedID: match.SuggestedID,
			Similarity:  match.Similarity,
		})
	}

	for i := range p.Skills {
		match, err := m.Match(ctx, domain.TaxonomySkill, p.Skills[i].Name)
		if err != nil {
			return nil, err
		}
		p.Skills[i].Match = match
		record(domain.TaxonomySkill, match)
	}
	for i := range p.Software {
		match, err := m.Match(ctx, domain.TaxonomySoftware, p.Software[i].Name)
		if err != nil {
			return nil, err
		}
		p.Software[i].Match = match
		record(domain.TaxonomySoftware, match)
	}
	for i := range p.Certifications {
		match, err := m.Match(ctx, domain.TaxonomyCertification, p.Certifications[i].Name)
		if err != nil {
			return nil, err
		}
		p.Certifications[i].Match = match
		record(domain.TaxonomyCertification, match)
	}
	for i := range p.Experience {
		match, err := m.Match(ctx, domain.TaxonomyRole, p.Experience[i].Title)
		if err != nil {
			return nil, err
		}
		p.Experience[i].Role = match
		record(domain.TaxonomyRole, match)
	}
	return unmatched, nil
}

// semanticMatch embeds the term and returns the nearest canonical entry by
// cosine similarity. Canonical embeddings are built lazily per alias
// snapshot, batched to the provider limit.
func (m *Mapper) semanticMatch(ctx domain.Context, kind domain.TaxonomyKind, term string) (string, float64, error) {
	if err := m.ensureEmbeddings(ctx, kind); err != nil {
		return "", 0, err
	}
	vecs, err := m.ai.Embed(ctx, []string{term})
	if err != nil {
		return "", 0, err
	}
	if len(vecs) != 1 {
		return "", 0, fmt.Errorf("%w: embed returned %d vectors", domain.ErrSchemaInvalid, len(vecs))
	}

	m.embedMu.Lock()
	entries := m.embeds[kind]
	m.embedMu.Unlock()

	var bestID string
	var bestSim float64
	for id, v := range entries {
		if sim := cosine(vecs[0], v); sim > bestSim {
			bestID, bestSim = id, sim
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, bestSim, nil
}

// ensureEmbeddings builds the per-kind canonical embedding table from the
// current alias snapshot. One display text per canonical id.
func (m *Mapper) ensureEmbeddings(ctx domain.Context, kind domain.TaxonomyKind) error {
	m.embedMu.Lock()
	defer m.embedMu.Unlock()
	if _, ok := m.embeds[kind]; ok && len(m.embeds[kind]) > 0 {
		return nil
	}

	idx, err := m.cache.snapshot(ctx)
	if err != nil {
		return err
	}
	displays := make(map[string]string)
	for _, a := range idx[kind] {
		if _, ok := displays[a.CanonicalID]; !ok {
			displays[a.CanonicalID] = a.Display
		}
	}
	ids := make([]string, 0, len(displays))
	texts := make([]string, 0, len(displays))
	for id, d := range displays {
		ids = append(ids, id)
		texts = append(texts, d)
	}

	table := make(map[string][]float32, len(ids))
	for start := 0; start < len(texts); start += domain.EmbedBatchSize {
		end := min(start+domain.EmbedBatchSize, len(texts))
		vecs, err := m.ai.Embed(ctx, texts[start:end])
		if err != nil {
			return err
		}
		for i, v := range vecs {
			table[ids[start+i]] = v
		}
	}
	m.embeds[kind] = table
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
