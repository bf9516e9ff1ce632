package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newRecord(id string) domain.IntakeRecord {
	return domain.IntakeRecord{
		CVID:     id,
		Status:   domain.StatusPending,
		S3Key:    "uploads/" + id + ".pdf",
		Filename: "cv.pdf",
	}
}

func TestIntakeCreateAndGet(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newRecord("cv-1")))

	rec, err := store.Get(ctx, "cv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, "uploads/cv-1.pdf", rec.S3Key)

	err = store.Create(ctx, newRecord("cv-1"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntakeUpdateAdvancesAndPreservesFields(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("cv-1")))

	rec, err := store.Update(ctx, "cv-1", domain.StatusUpdate{
		Status:               domain.StatusExtracting,
		ExtractionMethod:     "direct_pdf",
		ExtractionConfidence: 1.0,
		TextKey:              "extracted/cv-1.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExtracting, rec.Status)

	// A later transition with disjoint fields keeps the earlier ones.
	rec, err = store.Update(ctx, "cv-1", domain.StatusUpdate{
		Status:      domain.StatusStoring,
		CandidateID: "cand-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "direct_pdf", rec.ExtractionMethod)
	assert.Equal(t, "extracted/cv-1.txt", rec.TextKey)
	assert.Equal(t, "cand-9", rec.CandidateID)
}

func TestIntakeUpdateRejectsRegression(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("cv-1")))

	_, err := store.Update(ctx, "cv-1", domain.StatusUpdate{Status: domain.StatusStoring})
	require.NoError(t, err)

	_, err = store.Update(ctx, "cv-1", domain.StatusUpdate{Status: domain.StatusExtracting})
	assert.ErrorIs(t, err, domain.ErrStatusRegression)
}

func TestIntakeUpdateReplayIsNoOp(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("cv-1")))

	first, err := store.Update(ctx, "cv-1", domain.StatusUpdate{
		Status:  domain.StatusExtracting,
		TextKey: "extracted/cv-1.txt",
	})
	require.NoError(t, err)

	// A redelivered task replays the same transition: no error, no change.
	replay, err := store.Update(ctx, "cv-1", domain.StatusUpdate{
		Status:  domain.StatusExtracting,
		TextKey: "extracted/other.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, first.TextKey, replay.TextKey, "replay must not overwrite stored fields")
}

func TestIntakeFailedFromAnyNonTerminal(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("cv-1")))

	rec, err := store.Update(ctx, "cv-1", domain.StatusUpdate{
		Status:     domain.StatusFailed,
		Error:      "extraction blew up",
		FailedStep: "extracting",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)

	// Terminal states admit nothing further.
	_, err = store.Update(ctx, "cv-1", domain.StatusUpdate{Status: domain.StatusCompleted})
	assert.ErrorIs(t, err, domain.ErrStatusRegression)
}

func TestIntakeListStale(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewIntakeStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newRecord("cv-old")))
	require.NoError(t, store.Create(ctx, newRecord("cv-done")))
	_, err := store.Update(ctx, "cv-done", domain.StatusUpdate{Status: domain.StatusCompleted})
	require.NoError(t, err)

	// Backdate the stuck intake's last update.
	require.NoError(t, rdb.ZAdd(ctx, activeIndexKey, redis.Z{
		Score:  float64(time.Now().Add(-time.Hour).Unix()),
		Member: "cv-old",
	}).Err())

	stale, err := store.ListStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"cv-old"}, stale, "terminal intakes leave the active index")
}

func TestQueryCacheRoundTrip(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := NewQueryCache(rdb, 24*time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "λογιστές με SAP")
	require.NoError(t, err)
	assert.False(t, ok)

	ct := domain.CachedTranslation{
		Query: "λογιστές με SAP",
		Translation: domain.Translation{
			QueryType:  domain.QueryStructured,
			Confidence: 0.9,
			Filters: map[string]domain.FilterCondition{
				"skills": {Operator: "contains", Value: "sap"},
			},
		},
		SQL: domain.SQLQuery{Statement: "SELECT 1", Summary: "skills contains sap"},
	}
	require.NoError(t, cache.Put(ctx, "λογιστές με SAP", ct))

	// Same query modulo case, accents, and spacing hits the same entry.
	got, ok, err := cache.Get(ctx, "  ΛΟΓΙΣΤΕΣ   με sap ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.QueryStructured, got.Translation.QueryType)
	assert.False(t, got.CachedAt.IsZero())

	mr.FastForward(25 * time.Hour)
	_, ok, err = cache.Get(ctx, "λογιστές με SAP")
	require.NoError(t, err)
	assert.False(t, ok, "entries expire after the TTL")
}

func TestCacheKeyShape(t *testing.T) {
	key := CacheKey("some query")
	assert.Len(t, key, len(queryCachePrefix)+cacheKeyLen)
	assert.Equal(t, CacheKey("SOME   query"), key)
	assert.NotEqual(t, CacheKey("other query"), key)
}

func TestHRJobLifecycle(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewHRJobStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, domain.HRJob{ID: "job-1"}))
	assert.ErrorIs(t, store.Create(ctx, domain.HRJob{ID: "job-1"}), domain.ErrConflict)

	job, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HRJobProcessing, job.Status)

	report := &domain.HRReport{Recommendation: "interview c1 first"}
	require.NoError(t, store.Complete(ctx, "job-1", report))

	job, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HRJobCompleted, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, "interview c1 first", job.Report.Recommendation)

	require.NoError(t, store.Create(ctx, domain.HRJob{ID: "job-2"}))
	require.NoError(t, store.Fail(ctx, "job-2", "no candidates matched"))
	job, err = store.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.HRJobFailed, job.Status)
	assert.Equal(t, "no candidates matched", job.Error)
}
