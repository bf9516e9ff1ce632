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
	hrJobPrefix = "hrjob:"
	// hrJobTTL bounds how long finished analyses stay retrievable.
	hrJobTTL = 7 * 24 * time.Hour
)

// HRJobStore implements domain.HRJobStore on Redis.
type HRJobStore struct{ rdb *redis.Client }

// NewHRJobStore constructs an HRJobStore.
func NewHRJobStore(rdb *redis.Client) *HRJobStore { return &HRJobStore{rdb: rdb} }

// Create stores a new processing job.
func (s *HRJobStore) Create(ctx domain.Context, job domain.HRJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.HRJobProcessing
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("op=hrjobs.Create: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, hrJobPrefix+job.ID, b, hrJobTTL).Result()
	if err != nil {
		return fmt.Errorf("op=hrjobs.Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("op=hrjobs.Create: %w: %s", domain.ErrConflict, job.ID)
	}
	return nil
}

// Get loads a job by id.
func (s *HRJobStore) Get(ctx domain.Context, id string) (domain.HRJob, error) {
	raw, err := s.rdb.Get(ctx, hrJobPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return domain.HRJob{}, fmt.Errorf("op=hrjobs.Get: %w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.HRJob{}, fmt.Errorf("op=hrjobs.Get: %w", err)
	}
	var job domain.HRJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.HRJob{}, fmt.Errorf("op=hrjobs.Get: %w", err)
	}
	return job, nil
}

// Complete attaches the report and marks the job done.
func (s *HRJobStore) Complete(ctx domain.Context, id string, report *domain.HRReport) error {
	return s.finish(ctx, id, func(job *domain.HRJob) {
		job.Status = domain.HRJobCompleted
		job.Report = report
	})
}

// Fail marks the job failed with a reason.
func (s *HRJobStore) Fail(ctx domain.Context, id string, reason string) error {
	return s.finish(ctx, id, func(job *domain.HRJob) {
		job.Status = domain.HRJobFailed
		job.Error = reason
	})
}

func (s *HRJobStore) finish(ctx domain.Context, id string, apply func(*domain.HRJob)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("op=hrjobs.finish: %w", err)
	}
	if err := s.rdb.Set(ctx, hrJobPrefix+id, b, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("op=hrjobs.finish: %w", err)
	}
	return nil
}
