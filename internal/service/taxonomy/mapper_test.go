package taxonomy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/domain"
)

type fakeRepo struct {
	aliases   []domain.TaxonomyAlias
	fuzzyID   string
	fuzzySim  float64
	loadCalls atomic.Int32
}

func (f *fakeRepo) LoadAliases(_ domain.Context) ([]domain.TaxonomyAlias, error) {
	f.loadCalls.Add(1)
	return f.aliases, nil
}

func (f *fakeRepo) FuzzyMatch(_ domain.Context, _ domain.TaxonomyKind, _ string) (string, float64, error) {
	if f.fuzzyID == "" {
		return "", 0, domain.ErrNotFound
	}
	return f.fuzzyID, f.fuzzySim, nil
}

type fakeEmbedder struct {
	// vector per input text; unknown texts get a zero vector.
	vectors map[string][]float32
}

func (f *fakeEmbedder) Complete(_ domain.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
	return domain.CompletionResult{}, nil
}

func (f *fakeEmbedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func testAliases() []domain.TaxonomyAlias {
	return []domain.TaxonomyAlias{
		{Kind: domain.TaxonomySkill, CanonicalID: "sk-sap", Alias: "sap", Display: "SAP ERP"},
		{Kind: domain.TaxonomySkill, CanonicalID: "sk-sap", Alias: "sap erp", Display: "SAP ERP"},
		{Kind: domain.TaxonomySkill, CanonicalID: "sk-acc", Alias: "λογιστικη", Display: "Λογιστική"},
		{Kind: domain.TaxonomyRole, CanonicalID: "ro-acc", Alias: "λογιστης", Display: "Λογιστής"},
	}
}

func newMapper(repo *fakeRepo, emb *fakeEmbedder) *Mapper {
	if emb == nil {
		// Canonical displays get fixed axes; unknown terms default to an
		// orthogonal vector so they match nothing semantically.
		emb = &fakeEmbedder{vectors: map[string][]float32{
			"SAP ERP":   {1, 0, 0},
			"Λογιστική": {0, 1, 0},
			"Λογιστής":  {0.9, 0.1, 0},
		}}
	}
	return NewMapper(repo, emb, time.Hour)
}

func TestMatchExact(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases()}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "SAP")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchExact, match.Method)
	assert.Equal(t, "sk-sap", match.CanonicalID)
	assert.Equal(t, 1.0, match.Similarity)
}

func TestMatchExactFoldsAccents(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases()}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "Λογιστική")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchExact, match.Method)
	assert.Equal(t, "sk-acc", match.CanonicalID)
}

func TestMatchSubstringLongestAliasWins(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases()}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "SAP ERP Consultant")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchSubstring, match.Method)
	assert.Equal(t, "sk-sap", match.CanonicalID)
	assert.Equal(t, 0.9, match.Similarity)
}

func TestMatchFuzzyConfident(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases(), fuzzyID: "sk-acc", fuzzySim: 0.81}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "λογιστηκη") // misspelled
	require.NoError(t, err)
	assert.Equal(t, domain.MatchFuzzy, match.Method)
	assert.Equal(t, "sk-acc", match.CanonicalID)
	assert.Equal(t, 0.81, match.Similarity)
}

func TestMatchFuzzySuggestionBelowThreshold(t *testing.T) {
	// 0.65 is below the confident cut but above the suggestion floor; with no
	// semantic hit the fuzzy suggestion survives.
	m := newMapper(&fakeRepo{aliases: testAliases(), fuzzyID: "sk-acc", fuzzySim: 0.65}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "bookkeeping-ish")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchFuzzySuggested, match.Method)
	assert.Empty(t, match.CanonicalID)
	assert.Equal(t, "sk-acc", match.SuggestedID)
}

func TestMatchSemanticConfident(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"SAP ERP":    {1, 0, 0},
		"Λογιστική":  {0, 1, 0},
		"accounting": {0, 0.99, 0.05},
	}}
	m := newMapper(&fakeRepo{aliases: testAliases()}, emb)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "accounting")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchSemantic, match.Method)
	assert.Equal(t, "sk-acc", match.CanonicalID)
	assert.GreaterOrEqual(t, match.Similarity, semanticMin)
}

func TestMatchNone(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases()}, nil)
	match, err := m.Match(context.Background(), domain.TaxonomySkill, "underwater basket weaving")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchNone, match.Method)
	assert.Empty(t, match.CanonicalID)
}

func TestMapProfileRecordsUnmatched(t *testing.T) {
	m := newMapper(&fakeRepo{aliases: testAliases()}, nil)
	p := &domain.CandidateProfile{
		Skills:     []domain.Skill{{Name: "SAP"}, {Name: "qwertyuiop"}},
		Experience: []domain.ExperienceEntry{{Title: "Λογιστής"}},
	}
	unmatched, err := m.MapProfile(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "sk-sap", p.Skills[0].Match.CanonicalID)
	assert.Equal(t, "ro-acc", p.Experience[0].Role.CanonicalID)

	require.Len(t, unmatched, 1)
	assert.Equal(t, domain.TaxonomySkill, unmatched[0].Kind)
	assert.Equal(t, "qwertyuiop", unmatched[0].Value)
}

func TestAliasCacheServesStaleWhileRefreshing(t *testing.T) {
	repo := &fakeRepo{aliases: testAliases()}
	cache := newAliasCache(repo, 10*time.Millisecond)

	_, err := cache.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loadCalls.Load())

	time.Sleep(20 * time.Millisecond)
	// Past TTL: the read still succeeds immediately from the old snapshot.
	idx, err := cache.snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, idx[domain.TaxonomySkill])

	assert.Eventually(t, func() bool {
		return repo.loadCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "background refresh should reload")
}
