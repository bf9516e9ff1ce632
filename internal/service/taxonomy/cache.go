// Package taxonomy maps raw CV terms onto canonical taxonomy entries through
// a four-step cascade: exact alias, substring, trigram fuzzy, semantic.
package taxonomy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// aliasCache is the in-memory alias index with TTL-based stale-read refresh:
// reads past the TTL still serve the old snapshot while exactly one goroutine
// reloads in the background.
type aliasCache struct {
	repo domain.TaxonomyRepository
	ttl  time.Duration

	mu         sync.RWMutex
	byKind     map[domain.TaxonomyKind]map[string]domain.TaxonomyAlias
	loadedAt   time.Time
	refreshing bool
}

func newAliasCache(repo domain.TaxonomyRepository, ttl time.Duration) *aliasCache {
	return &aliasCache{repo: repo, ttl: ttl}
}

// snapshot returns the current alias index, kicking off a background refresh
// when the snapshot is past its TTL. The first call loads synchronously.
func (c *aliasCache) snapshot(ctx domain.Context) (map[domain.TaxonomyKind]map[string]domain.TaxonomyAlias, error) {
	c.mu.RLock()
	idx := c.byKind
	fresh := time.Since(c.loadedAt) < c.ttl
	c.mu.RUnlock()

	if idx == nil {
		return c.reload(ctx)
	}
	if !fresh {
		c.mu.Lock()
		if !c.refreshing {
			c.refreshing = true
			go func() {
				// Detach from the request context; the refresh outlives it.
				if _, err := c.reload(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("taxonomy alias refresh failed", slog.String("error", err.Error()))
				}
			}()
		}
		c.mu.Unlock()
	}
	return idx, nil
}

func (c *aliasCache) reload(ctx domain.Context) (map[domain.TaxonomyKind]map[string]domain.TaxonomyAlias, error) {
	aliases, err := c.repo.LoadAliases(ctx)
	if err != nil {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
		return nil, err
	}
	idx := make(map[domain.TaxonomyKind]map[string]domain.TaxonomyAlias)
	for _, a := range aliases {
		m := idx[a.Kind]
		if m == nil {
			m = make(map[string]domain.TaxonomyAlias)
			idx[a.Kind] = m
		}
		m[a.Alias] = a
	}
	c.mu.Lock()
	c.byKind = idx
	c.loadedAt = time.Now()
	c.refreshing = false
	c.mu.Unlock()
	slog.Debug("taxonomy alias cache loaded", slog.Int("aliases", len(aliases)))
	return idx, nil
}
