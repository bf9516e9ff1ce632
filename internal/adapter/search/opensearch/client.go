// Package opensearch is a minimal HTTP client for the search engine: index
// management, document writes, and the kNN/text/hybrid query surface. Only
// the endpoints this project needs are implemented.
package opensearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// RRF fusion constants for hybrid search: reciprocal-rank k and the
// vector/text weights.
const (
	rrfK         = 60
	vectorWeight = 0.6
	textWeight   = 0.4
)

// Client implements domain.SearchIndex. The alias name is stable; the
// physical index carries a version suffix so mappings can be rebuilt behind
// the alias.
type Client struct {
	baseURL  string
	alias    string
	username string
	password string
	hc       *http.Client
}

// New constructs a Client for baseURL and alias.
func New(baseURL, alias, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		alias:    alias,
		username: username,
		password: password,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) do(ctx domain.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// indexMapping is the candidate document mapping: a Greek-aware text
// analyzer for BM25 fields and a kNN dense vector for semantic search.
func (c *Client) indexMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{"knn": true},
			"analysis": map[string]any{
				"filter": map[string]any{
					"greek_stop":      map[string]any{"type": "stop", "stopwords": "_greek_"},
					"greek_stemmer":   map[string]any{"type": "stemmer", "language": "greek"},
					"greek_lowercase": map[string]any{"type": "lowercase", "language": "greek"},
				},
				"analyzer": map[string]any{
					"greek_folded": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"greek_lowercase", "asciifolding", "greek_stop", "greek_stemmer"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"candidate_id":     map[string]any{"type": "keyword"},
				"full_name":        map[string]any{"type": "text", "analyzer": "greek_folded"},
				"full_name_folded": map[string]any{"type": "text"},
				"location":         map[string]any{"type": "keyword"},
				"skills": map[string]any{
					"properties": map[string]any{
						"name":         map[string]any{"type": "text", "analyzer": "greek_folded"},
						"canonical_id": map[string]any{"type": "keyword"},
					},
				},
				"experience": map[string]any{
					"properties": map[string]any{
						"title":           map[string]any{"type": "text", "analyzer": "greek_folded"},
						"company":         map[string]any{"type": "text", "analyzer": "greek_folded"},
						"description":     map[string]any{"type": "text", "analyzer": "greek_folded"},
						"duration_months": map[string]any{"type": "integer"},
					},
				},
				"languages": map[string]any{
					"properties": map[string]any{
						"name": map[string]any{"type": "text", "analyzer": "greek_folded"},
						"iso":  map[string]any{"type": "keyword"},
						"cefr": map[string]any{"type": "keyword"},
					},
				},
				"certifications":   map[string]any{"type": "text", "analyzer": "greek_folded"},
				"training":         map[string]any{"type": "text", "analyzer": "greek_folded"},
				"driving_licenses": map[string]any{"type": "keyword"},
				"cv_embedding": map[string]any{
					"type":      "knn_vector",
					"dimension": domain.EmbeddingDim,
					"method": map[string]any{
						"name":       "hnsw",
						"engine":     "lucene",
						"space_type": "cosinesimil",
					},
				},
				"updated_at": map[string]any{"type": "date"},
			},
		},
	}
}

// EnsureIndex creates the versioned physical index and points the alias at
// it. Existing indexes are left untouched.
func (c *Client) EnsureIndex(ctx domain.Context) error {
	physical := c.alias + "-v1"

	var exists map[string]any
	err := c.do(ctx, http.MethodGet, "/"+physical, nil, &exists)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "status 404") {
		return fmt.Errorf("op=search.ensure: %w", err)
	}

	if err := c.do(ctx, http.MethodPut, "/"+physical, c.indexMapping(), nil); err != nil {
		return fmt.Errorf("op=search.ensure: create: %w", err)
	}
	aliasBody := map[string]any{
		"actions": []map[string]any{
			{"add": map[string]any{"index": physical, "alias": c.alias}},
		},
	}
	if err := c.do(ctx, http.MethodPost, "/_aliases", aliasBody, nil); err != nil {
		return fmt.Errorf("op=search.ensure: alias: %w", err)
	}
	return nil
}

// aliasIndexes lists the physical indexes currently behind the alias.
func (c *Client) aliasIndexes(ctx domain.Context) ([]string, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/_alias/"+c.alias, nil, &out)
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// BeginReindex creates the next versioned physical index with the current
// mapping. The alias keeps serving the previous index.
func (c *Client) BeginReindex(ctx domain.Context) (string, error) {
	current, err := c.aliasIndexes(ctx)
	if err != nil {
		return "", fmt.Errorf("op=search.reindex: %w", err)
	}
	version := 0
	for _, name := range current {
		suffix, ok := strings.CutPrefix(name, c.alias+"-v")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(suffix); err == nil && v > version {
			version = v
		}
	}
	target := fmt.Sprintf("%s-v%d", c.alias, version+1)
	if err := c.do(ctx, http.MethodPut, "/"+target, c.indexMapping(), nil); err != nil {
		return "", fmt.Errorf("op=search.reindex: create %s: %w", target, err)
	}
	return target, nil
}

// PromoteIndex repoints the alias at the given index in a single _aliases
// call, so searches never observe a half-moved alias.
func (c *Client) PromoteIndex(ctx domain.Context, target string) error {
	current, err := c.aliasIndexes(ctx)
	if err != nil {
		return fmt.Errorf("op=search.promote: %w", err)
	}
	actions := make([]map[string]any, 0, len(current)+1)
	for _, name := range current {
		if name == target {
			continue
		}
		actions = append(actions, map[string]any{
			"remove": map[string]any{"index": name, "alias": c.alias},
		})
	}
	actions = append(actions, map[string]any{
		"add": map[string]any{"index": target, "alias": c.alias},
	})
	if err := c.do(ctx, http.MethodPost, "/_aliases", map[string]any{"actions": actions}, nil); err != nil {
		return fmt.Errorf("op=search.promote: %w", err)
	}
	return nil
}

// IndexCandidate upserts one document keyed by candidate id.
func (c *Client) IndexCandidate(ctx domain.Context, doc domain.SearchDocument) error {
	path := "/" + c.alias + "/_doc/" + doc.CandidateID
	if err := c.do(ctx, http.MethodPut, path, doc, nil); err != nil {
		return fmt.Errorf("op=search.index: %w", err)
	}
	return nil
}

// BulkIndex writes documents through the _bulk endpoint.
func (c *Client) BulkIndex(ctx domain.Context, docs []domain.SearchDocument) error {
	return c.BulkIndexInto(ctx, c.alias, docs)
}

// BulkIndexInto writes documents to a specific physical index, bypassing the
// alias. Reindex builds write here before the alias moves.
func (c *Client) BulkIndexInto(ctx domain.Context, index string, docs []domain.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if err := enc.Encode(map[string]any{
			"index": map[string]any{"_index": index, "_id": doc.CandidateID},
		}); err != nil {
			return fmt.Errorf("op=search.bulk: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("op=search.bulk: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_bulk", &buf)
	if err != nil {
		return fmt.Errorf("op=search.bulk: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=search.bulk: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("op=search.bulk: status %d", resp.StatusCode)
	}
	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("op=search.bulk: %w", err)
	}
	if out.Errors {
		return fmt.Errorf("op=search.bulk: partial failures reported")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				FullName string `json:"full_name"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r searchResponse) toHits() []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, domain.SearchHit{
			CandidateID: h.ID,
			Score:       h.Score,
			FullName:    h.Source.FullName,
		})
	}
	return out
}

// KNNSearch runs a pure dense-vector query with an optional term filter.
func (c *Client) KNNSearch(ctx domain.Context, vector []float32, k int, filter map[string]any) ([]domain.SearchHit, error) {
	knn := map[string]any{"vector": vector, "k": k}
	if len(filter) > 0 {
		var terms []map[string]any
		for field, value := range filter {
			terms = append(terms, map[string]any{"term": map[string]any{field: value}})
		}
		knn["filter"] = map[string]any{"bool": map[string]any{"filter": terms}}
	}
	body := map[string]any{
		"size":    k,
		"query":   map[string]any{"knn": map[string]any{"cv_embedding": knn}},
		"_source": []string{"full_name"},
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.alias+"/_search", body, &resp); err != nil {
		return nil, fmt.Errorf("op=search.knn: %w", err)
	}
	return resp.toHits(), nil
}

// TextSearch runs a BM25 multi-field query through the Greek analyzer.
func (c *Client) TextSearch(ctx domain.Context, query string, k int) ([]domain.SearchHit, error) {
	body := map[string]any{
		"size": k,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query": query,
				"fields": []string{
					"full_name^2", "skills.name^2", "experience.title^2",
					"experience.description", "certifications", "training",
				},
				"type": "best_fields",
			},
		},
		"_source": []string{"full_name"},
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.alias+"/_search", body, &resp); err != nil {
		return nil, fmt.Errorf("op=search.text: %w", err)
	}
	return resp.toHits(), nil
}

// HybridSearch runs the vector and text queries and fuses them with
// weighted reciprocal-rank fusion.
func (c *Client) HybridSearch(ctx domain.Context, query string, vector []float32, k int) ([]domain.SearchHit, error) {
	vecHits, err := c.KNNSearch(ctx, vector, k, nil)
	if err != nil {
		return nil, err
	}
	textHits, err := c.TextSearch(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return fuseRRF(vecHits, textHits, k), nil
}

// fuseRRF merges two ranked lists: score = w/(k + rank) summed per
// candidate, names carried from whichever list has them.
func fuseRRF(vecHits, textHits []domain.SearchHit, k int) []domain.SearchHit {
	scores := make(map[string]float64)
	names := make(map[string]string)
	for rank, h := range vecHits {
		scores[h.CandidateID] += vectorWeight / float64(rrfK+rank+1)
		if h.FullName != "" {
			names[h.CandidateID] = h.FullName
		}
	}
	for rank, h := range textHits {
		scores[h.CandidateID] += textWeight / float64(rrfK+rank+1)
		if h.FullName != "" {
			names[h.CandidateID] = h.FullName
		}
	}

	out := make([]domain.SearchHit, 0, len(scores))
	for id, score := range scores {
		out = append(out, domain.SearchHit{CandidateID: id, Score: score, FullName: names[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
