// Package app wires the adapters into running processes: router assembly,
// readiness probes, and the background sweepers.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hrdataworks/talentdb/internal/config"
)

// probeTimeout bounds each individual readiness probe.
const probeTimeout = 2 * time.Second

// Check is one named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckResult is the outcome of one probe as rendered by /readyz.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// RunChecks executes all probes with a per-probe timeout and reports
// whether every dependency answered.
func RunChecks(ctx context.Context, checks []Check) ([]CheckResult, bool) {
	results := make([]CheckResult, 0, len(checks))
	allOK := true
	for _, c := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.Probe(probeCtx)
		cancel()
		res := CheckResult{Name: c.Name, OK: err == nil}
		if err != nil {
			res.Details = err.Error()
			allOK = false
		}
		results = append(results, res)
	}
	return results, allOK
}

func writeReadyz(w http.ResponseWriter, status int, results []CheckResult) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":     status == http.StatusOK,
		"checks": results,
	})
}

// Pinger is the slice of a pgx pool the Postgres probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck probes the relational store.
func PostgresCheck(pool Pinger) Check {
	return Check{Name: "postgres", Probe: func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("pool not configured")
		}
		return pool.Ping(ctx)
	}}
}

// RedisCheck probes the key-value state store. ping is typically
// rdb.Ping(ctx).Err wrapped in a closure.
func RedisCheck(ping func(ctx context.Context) error) Check {
	return Check{Name: "redis", Probe: func(ctx context.Context) error {
		if ping == nil {
			return fmt.Errorf("redis not configured")
		}
		return ping(ctx)
	}}
}

// SearchCheck probes the search cluster health endpoint.
func SearchCheck(cfg config.Config) Check {
	return Check{Name: "search", Probe: func(ctx context.Context) error {
		client := &http.Client{Timeout: probeTimeout}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.SearchURL+"/_cluster/health", nil)
		if err != nil {
			return err
		}
		if cfg.SearchUsername != "" {
			req.SetBasicAuth(cfg.SearchUsername, cfg.SearchPassword)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("search status %d", resp.StatusCode)
	}}
}

// BucketProber is the slice of the object store the probe needs.
type BucketProber interface {
	EnsureBucket(ctx context.Context) error
}

// ObjectStoreCheck probes the artifact bucket.
func ObjectStoreCheck(store BucketProber) Check {
	return Check{Name: "object_store", Probe: func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("object store not configured")
		}
		return store.EnsureBucket(ctx)
	}}
}
