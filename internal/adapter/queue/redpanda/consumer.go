package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// IntakeHandler processes one intake pipeline task.
type IntakeHandler func(ctx context.Context, payload domain.IntakeTaskPayload) error

// HRHandler processes one async HR analysis task.
type HRHandler func(ctx context.Context, payload domain.HRTaskPayload) error

// Consumer consumes both topics inside a group-transact session. Offsets
// commit transactionally per poll, so a crashed worker redelivers its
// in-flight batch; handlers are replay-safe (the intake state guard turns
// redelivered transitions into no-ops).
type Consumer struct {
	session *kgo.GroupTransactSession
	intake  IntakeHandler
	hr      HRHandler
	groupID string
	// sem bounds concurrent handlers within one poll batch.
	sem chan struct{}
}

// NewConsumer constructs a Consumer for both task topics.
func NewConsumer(brokers []string, groupID, transactionalID string, maxConcurrency int, intake IntakeHandler, hr HRHandler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: missing group id")
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	defer tempClient.Close()
	if err := createTopicIfNotExists(ctx, tempClient, TopicIntake, intakePartitions, 1); err != nil {
		slog.Warn("intake topic creation failed", slog.Any("error", err))
	}
	if err := createTopicIfNotExists(ctx, tempClient, TopicHRAnalysis, 1, 1); err != nil {
		slog.Warn("hr topic creation failed", slog.Any("error", err))
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))

	session, err := kgo.NewGroupTransactSession(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicIntake, TopicHRAnalysis),
		kgo.RequireStableFetchOffsets(),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}

	return &Consumer{
		session: session,
		intake:  intake,
		hr:      hr,
		groupID: groupID,
		sem:     make(chan struct{}, maxConcurrency),
	}, nil
}

// Run polls until the context is cancelled. Each poll is one transaction:
// handler failures that look transient abort the batch for redelivery,
// anything else is recorded by the handler itself and committed.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("queue consumer started", slog.String("group_id", c.groupID))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches := c.session.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return ctx.Err()
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Any("error", fe.Err))
			}
			continue
		}
		if fetches.Empty() {
			continue
		}

		retry := c.processBatch(ctx, fetches)

		how := kgo.TryCommit
		if retry {
			how = kgo.TryAbort
		}
		committed, err := c.session.End(ctx, how)
		if err != nil {
			slog.Error("session end failed", slog.Any("error", err))
			continue
		}
		if !committed && how == kgo.TryCommit {
			slog.Warn("offset commit aborted, batch will be redelivered")
		}
	}
}

// processBatch runs handlers for every record, bounded by the semaphore.
// It reports whether any record failed transiently.
func (c *Consumer) processBatch(ctx context.Context, fetches kgo.Fetches) bool {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		retry bool
	)
	fetches.EachRecord(func(rec *kgo.Record) {
		wg.Add(1)
		c.sem <- struct{}{}
		go func() {
			defer func() {
				<-c.sem
				wg.Done()
			}()
			if err := c.processRecord(ctx, rec); err != nil && isTransient(err) {
				mu.Lock()
				retry = true
				mu.Unlock()
			}
		}()
	})
	wg.Wait()
	return retry
}

// processRecord decodes and dispatches one record by topic.
func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) error {
	var err error
	switch rec.Topic {
	case TopicIntake:
		var payload domain.IntakeTaskPayload
		if err = json.Unmarshal(rec.Value, &payload); err == nil {
			err = c.intake(ctx, payload)
		}
	case TopicHRAnalysis:
		var payload domain.HRTaskPayload
		if err = json.Unmarshal(rec.Value, &payload); err == nil {
			err = c.hr(ctx, payload)
		}
	default:
		slog.Warn("record on unexpected topic", slog.String("topic", rec.Topic))
		return nil
	}
	if err != nil {
		slog.Error("task handler failed",
			slog.String("topic", rec.Topic),
			slog.String("key", string(rec.Key)),
			slog.Any("error", err))
	}
	return err
}

// isTransient reports whether the failure is worth a redelivery. Schema
// and validation failures never are, the handler has already recorded
// them as terminal.
func isTransient(err error) bool {
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrUpstreamRateLimit) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Close closes the session's client.
func (c *Consumer) Close() {
	if c.session != nil {
		c.session.Close()
	}
}
