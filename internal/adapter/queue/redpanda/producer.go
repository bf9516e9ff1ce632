// Package redpanda implements domain.Queue on Redpanda/Kafka with
// transactional (exactly-once) publishing and a group-transact consumer.
package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hrdataworks/talentdb/internal/domain"
)

var errEmptyTopic = errors.New("empty topic name")

// Producer wraps a transactional Kafka producer and implements
// domain.Queue.
type Producer struct {
	client *kgo.Client
	// txCh serializes transactions on the shared client.
	txCh chan struct{}
}

// NewProducer constructs a transactional Producer and ensures both topics
// exist.
func NewProducer(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}

	ctx := context.Background()
	if err := createTopicIfNotExists(ctx, client, TopicIntake, intakePartitions, 1); err != nil {
		slog.Warn("intake topic creation failed", slog.Any("error", err))
	}
	if err := createTopicIfNotExists(ctx, client, TopicHRAnalysis, 1, 1); err != nil {
		slog.Warn("hr topic creation failed", slog.Any("error", err))
	}

	return &Producer{client: client, txCh: make(chan struct{}, 1)}, nil
}

// EnqueueIntake publishes an intake pipeline task keyed by correlation id.
func (p *Producer) EnqueueIntake(ctx domain.Context, payload domain.IntakeTaskPayload) (string, error) {
	rec, err := intakeRecord(payload)
	if err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueIntake: %w", err)
	}
	if err := p.produce(ctx, rec); err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueIntake: %w", err)
	}
	slog.Info("intake task enqueued",
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("object_key", payload.ObjectKey))
	return payload.CorrelationID, nil
}

// EnqueueHRAnalysis publishes an async HR analysis task keyed by job id.
func (p *Producer) EnqueueHRAnalysis(ctx domain.Context, payload domain.HRTaskPayload) (string, error) {
	rec, err := hrRecord(payload)
	if err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueHRAnalysis: %w", err)
	}
	if err := p.produce(ctx, rec); err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueHRAnalysis: %w", err)
	}
	slog.Info("hr analysis task enqueued", slog.String("hr_job_id", payload.HRJobID))
	return payload.HRJobID, nil
}

func intakeRecord(payload domain.IntakeTaskPayload) (*kgo.Record, error) {
	if payload.CorrelationID == "" {
		return nil, fmt.Errorf("%w: missing correlation id", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: TopicIntake,
		Key:   []byte(payload.CorrelationID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "correlation_id", Value: []byte(payload.CorrelationID)},
			{Key: "filename", Value: []byte(payload.Filename)},
		},
	}, nil
}

func hrRecord(payload domain.HRTaskPayload) (*kgo.Record, error) {
	if payload.HRJobID == "" {
		return nil, fmt.Errorf("%w: missing hr job id", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: TopicHRAnalysis,
		Key:   []byte(payload.HRJobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "hr_job_id", Value: []byte(payload.HRJobID)},
		},
	}, nil
}

// produce publishes one record inside its own transaction.
func (p *Producer) produce(ctx domain.Context, rec *kgo.Record) error {
	select {
	case p.txCh <- struct{}{}:
		defer func() { <-p.txCh }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	promise := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, rec, promise.Promise())
	if err := promise.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("transaction abort failed", slog.Any("error", abortErr))
		}
		return fmt.Errorf("produce: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
