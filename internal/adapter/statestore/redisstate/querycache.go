package redisstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

const queryCachePrefix = "qcache:"

// cacheKeyLen is the number of hex characters of the SHA-256 digest used as
// the cache key.
const cacheKeyLen = 16

// QueryCache memoizes query translations. Only the translation and the
// generated statement are stored, never result rows, so cached entries stay
// valid as candidates change.
type QueryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQueryCache constructs a QueryCache with the given TTL.
func NewQueryCache(rdb *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{rdb: rdb, ttl: ttl}
}

// CacheKey derives the cache key: the query is folded and
// whitespace-collapsed so trivially different phrasings share an entry.
func CacheKey(query string) string {
	sum := sha256.Sum256([]byte(textx.NormalizeKey(query)))
	return queryCachePrefix + hex.EncodeToString(sum[:])[:cacheKeyLen]
}

// Get returns the cached translation for query, if present.
func (c *QueryCache) Get(ctx domain.Context, query string) (domain.CachedTranslation, bool, error) {
	raw, err := c.rdb.Get(ctx, CacheKey(query)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.CachedTranslation{}, false, nil
	}
	if err != nil {
		return domain.CachedTranslation{}, false, fmt.Errorf("op=querycache.Get: %w", err)
	}
	var ct domain.CachedTranslation
	if err := json.Unmarshal([]byte(raw), &ct); err != nil {
		return domain.CachedTranslation{}, false, fmt.Errorf("op=querycache.Get: %w", err)
	}
	return ct, true, nil
}

// Put stores a translation under the query's key with the cache TTL.
func (c *QueryCache) Put(ctx domain.Context, query string, ct domain.CachedTranslation) error {
	if ct.CachedAt.IsZero() {
		ct.CachedAt = time.Now().UTC()
	}
	b, err := json.Marshal(ct)
	if err != nil {
		return fmt.Errorf("op=querycache.Put: %w", err)
	}
	if err := c.rdb.Set(ctx, CacheKey(query), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=querycache.Put: %w", err)
	}
	return nil
}
