package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/domain"
)

func TestFuseRRFWeightsAndOrder(t *testing.T) {
	vec := []domain.SearchHit{
		{CandidateID: "a", Score: 0.9, FullName: "A"},
		{CandidateID: "b", Score: 0.8},
	}
	text := []domain.SearchHit{
		{CandidateID: "b", Score: 12, FullName: "B"},
		{CandidateID: "c", Score: 10},
	}
	out := fuseRRF(vec, text, 10)
	require.Len(t, out, 3)

	// b appears in both lists so it outranks a (vector-only, rank 1) and c
	// (text-only, rank 2).
	assert.Equal(t, "b", out[0].CandidateID)
	assert.Equal(t, "B", out[0].FullName)
	expectedB := vectorWeight/float64(rrfK+2) + textWeight/float64(rrfK+1)
	assert.InDelta(t, expectedB, out[0].Score, 1e-12)

	assert.Equal(t, "a", out[1].CandidateID)
	assert.InDelta(t, vectorWeight/float64(rrfK+1), out[1].Score, 1e-12)
	assert.Equal(t, "c", out[2].CandidateID)
}

func TestFuseRRFTruncatesToK(t *testing.T) {
	var vec []domain.SearchHit
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		vec = append(vec, domain.SearchHit{CandidateID: id})
	}
	out := fuseRRF(vec, nil, 3)
	assert.Len(t, out, 3)
}

func TestEnsureIndexCreatesAndAliases(t *testing.T) {
	var createdIndex, aliased bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/candidates-v1":
			http.NotFound(w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/candidates-v1":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body, "mappings")
			createdIndex = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == http.MethodPost && r.URL.Path == "/_aliases":
			aliased = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	require.NoError(t, c.EnsureIndex(context.Background()))
	assert.True(t, createdIndex)
	assert.True(t, aliased)
}

func TestEnsureIndexIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"candidates-v1":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	require.NoError(t, c.EnsureIndex(context.Background()))
}

func TestBeginReindexCreatesNextVersion(t *testing.T) {
	var created string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/_alias/candidates":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"candidates-v3":{"aliases":{"candidates":{}}}}`))
		case r.Method == http.MethodPut:
			created = r.URL.Path
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	target, err := c.BeginReindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "candidates-v4", target)
	assert.Equal(t, "/candidates-v4", created)
}

func TestPromoteIndexSwapsAliasAtomically(t *testing.T) {
	var actions []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/_alias/candidates":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"candidates-v1":{"aliases":{"candidates":{}}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/_aliases":
			var body struct {
				Actions []map[string]any `json:"actions"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			actions = body.Actions
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	require.NoError(t, c.PromoteIndex(context.Background(), "candidates-v2"))

	// Remove and add travel in one call so the alias never dangles.
	require.Len(t, actions, 2)
	assert.Contains(t, actions[0], "remove")
	assert.Contains(t, actions[1], "add")
}

func TestTextSearchParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/candidates/_search", r.URL.Path)
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"c1","_score":11.5,"_source":{"full_name":"Μαρία Π"}},
			{"_id":"c2","_score":7.2,"_source":{"full_name":"Νίκος Γ"}}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	hits, err := c.TextSearch(context.Background(), "λογιστής SAP", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].CandidateID)
	assert.Equal(t, 11.5, hits[0].Score)
	assert.Equal(t, "Μαρία Π", hits[0].FullName)
}

func TestBulkIndexReportsPartialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		_, _ = w.Write([]byte(`{"errors":true,"items":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "candidates", "", "")
	err := c.BulkIndex(context.Background(), []domain.SearchDocument{{CandidateID: "c1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partial failures")
}
