// Package redisstate implements the key-value state stores: intake records,
// the query translation cache, and async HR analysis jobs.
package redisstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrdataworks/talentdb/internal/domain"
)

const (
	intakeKeyPrefix = "intake:"
	activeIndexKey  = "intake:active"
)

// updateMaxRetries bounds the optimistic CAS loop on concurrent updates.
const updateMaxRetries = 3

// IntakeStore implements domain.IntakeStateStore on Redis. The record lives
// in a hash (status field plus the full JSON document) so the transition
// guard can compare statuses server-side without decoding the document.
type IntakeStore struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewIntakeStore constructs an IntakeStore.
func NewIntakeStore(rdb *redis.Client) *IntakeStore {
	return &IntakeStore{rdb: rdb, script: redis.NewScript(luaStatusGuard)}
}

// luaStatusGuard applies one conditional transition. It returns:
//
//	 1  written
//	 0  replay of the current status, no-op
//	-1  regressive or terminal transition, rejected
//	-2  current status no longer matches the caller's read, retry
const luaStatusGuard = `
local key = KEYS[1]
local expected = ARGV[1]
local new_status = ARGV[2]
local new_rank = tonumber(ARGV[3])
local doc = ARGV[4]
local ranks = cjson.decode(ARGV[5])

local cur = redis.call("HGET", key, "status")
if cur == false then
  return -1
end
if cur ~= expected then
  return -2
end
if cur == new_status then
  return 0
end
if cur == "completed" or cur == "failed" then
  return -1
end
if new_status ~= "failed" and new_rank <= tonumber(ranks[cur]) then
  return -1
end
redis.call("HSET", key, "status", new_status, "doc", doc)
return 1
`

// statusRanks is the rank table shipped to the guard script.
var statusRanks = func() string {
	ranks := map[string]int{}
	for _, s := range []domain.IntakeStatus{
		domain.StatusUploading, domain.StatusPending, domain.StatusExtracting,
		domain.StatusParsing, domain.StatusMapping, domain.StatusStoring,
		domain.StatusIndexing, domain.StatusCompleted, domain.StatusFailed,
	} {
		ranks[string(s)] = s.Rank()
	}
	b, _ := json.Marshal(ranks)
	return string(b)
}()

// Create stores a fresh intake record. Creating an existing correlation id
// is a conflict.
func (s *IntakeStore) Create(ctx domain.Context, rec domain.IntakeRecord) error {
	if rec.CVID == "" {
		return fmt.Errorf("op=intakestore.Create: %w: empty correlation id", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("op=intakestore.Create: %w", err)
	}

	key := intakeKeyPrefix + rec.CVID
	ok, err := s.rdb.HSetNX(ctx, key, "status", string(rec.Status)).Result()
	if err != nil {
		return fmt.Errorf("op=intakestore.Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("op=intakestore.Create: %w: %s", domain.ErrConflict, rec.CVID)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "doc", doc)
	pipe.ZAdd(ctx, activeIndexKey, redis.Z{Score: float64(now.Unix()), Member: rec.CVID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=intakestore.Create: %w", err)
	}
	return nil
}

// Get loads a record by correlation id.
func (s *IntakeStore) Get(ctx domain.Context, correlationID string) (domain.IntakeRecord, error) {
	raw, err := s.rdb.HGet(ctx, intakeKeyPrefix+correlationID, "doc").Result()
	if errors.Is(err, redis.Nil) {
		return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Get: %w: %s", domain.ErrNotFound, correlationID)
	}
	if err != nil {
		return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Get: %w", err)
	}
	var rec domain.IntakeRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Get: %w", err)
	}
	return rec, nil
}

// Update applies one status transition with disjoint-field preservation:
// the stored document is merged with the update's non-zero fields and
// written only if the transition is legal under the monotone guard.
func (s *IntakeStore) Update(ctx domain.Context, correlationID string, upd domain.StatusUpdate) (domain.IntakeRecord, error) {
	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		rec, err := s.Get(ctx, correlationID)
		if err != nil {
			return domain.IntakeRecord{}, err
		}
		prevStatus := rec.Status

		merged := merge(rec, upd)
		merged.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(merged)
		if err != nil {
			return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Update: %w", err)
		}

		res, err := s.script.Run(ctx, s.rdb,
			[]string{intakeKeyPrefix + correlationID},
			string(prevStatus), string(upd.Status), upd.Status.Rank(), doc, statusRanks,
		).Int()
		if err != nil {
			return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Update: %w", err)
		}
		switch res {
		case 1:
			if upd.Status.Terminal() {
				_ = s.rdb.ZRem(ctx, activeIndexKey, correlationID).Err()
			} else {
				_ = s.rdb.ZAdd(ctx, activeIndexKey, redis.Z{
					Score: float64(merged.UpdatedAt.Unix()), Member: correlationID,
				}).Err()
			}
			return merged, nil
		case 0:
			// Replay of the current status: no-op, return the stored record.
			return rec, nil
		case -1:
			return rec, fmt.Errorf("op=intakestore.Update: %w: %s -> %s",
				domain.ErrStatusRegression, prevStatus, upd.Status)
		case -2:
			continue
		}
	}
	return domain.IntakeRecord{}, fmt.Errorf("op=intakestore.Update: %w: concurrent updates exhausted retries", domain.ErrConflict)
}

// merge overlays the update's non-zero fields onto the stored record.
func merge(rec domain.IntakeRecord, upd domain.StatusUpdate) domain.IntakeRecord {
	rec.Status = upd.Status
	if upd.ExtractionMethod != "" {
		rec.ExtractionMethod = upd.ExtractionMethod
	}
	if upd.ExtractionConfidence != 0 {
		rec.ExtractionConfidence = upd.ExtractionConfidence
	}
	if upd.TextKey != "" {
		rec.TextKey = upd.TextKey
	}
	if upd.ParsedKey != "" {
		rec.ParsedKey = upd.ParsedKey
	}
	if upd.CandidateID != "" {
		rec.CandidateID = upd.CandidateID
	}
	if upd.CompletenessScore != 0 {
		rec.CompletenessScore = upd.CompletenessScore
	}
	if upd.QualityLevel != "" {
		rec.QualityLevel = upd.QualityLevel
	}
	if upd.Counts != nil {
		rec.Counts = upd.Counts
	}
	if upd.WriteVerification != nil {
		rec.WriteVerification = upd.WriteVerification
	}
	if upd.CompletenessAudit != "" {
		rec.CompletenessAudit = upd.CompletenessAudit
	}
	if upd.IndexingError != "" {
		rec.IndexingError = upd.IndexingError
	}
	if upd.Error != "" {
		rec.Error = upd.Error
	}
	if upd.FailedStep != "" {
		rec.FailedStep = upd.FailedStep
	}
	return rec
}

// ListStale returns correlation ids of non-terminal intakes whose last
// update is older than maxAge.
func (s *IntakeStore) ListStale(ctx domain.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	ids, err := s.rdb.ZRangeByScore(ctx, activeIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("op=intakestore.ListStale: %w", err)
	}
	return ids, nil
}
