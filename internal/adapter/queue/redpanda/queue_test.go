package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hrdataworks/talentdb/internal/domain"
)

func TestIntakeRecordShape(t *testing.T) {
	payload := domain.IntakeTaskPayload{
		CorrelationID: "cv-1",
		Bucket:        "cv-intake",
		ObjectKey:     "uploads/cv-1/bio.pdf",
		Filename:      "bio.pdf",
		ContentType:   "application/pdf",
	}
	rec, err := intakeRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, TopicIntake, rec.Topic)
	assert.Equal(t, []byte("cv-1"), rec.Key, "keyed by correlation id for partition ordering")

	var decoded domain.IntakeTaskPayload
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, payload, decoded)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "cv-1", headers["correlation_id"])
	assert.Equal(t, "bio.pdf", headers["filename"])
}

func TestIntakeRecordRejectsMissingCorrelationID(t *testing.T) {
	_, err := intakeRecord(domain.IntakeTaskPayload{ObjectKey: "uploads/x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestHRRecordShape(t *testing.T) {
	rec, err := hrRecord(domain.HRTaskPayload{HRJobID: "job-1", Query: "λογιστές"})
	require.NoError(t, err)
	assert.Equal(t, TopicHRAnalysis, rec.Topic)
	assert.Equal(t, []byte("job-1"), rec.Key)

	_, err = hrRecord(domain.HRTaskPayload{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestProcessRecordDispatchesByTopic(t *testing.T) {
	var gotIntake domain.IntakeTaskPayload
	var gotHR domain.HRTaskPayload
	c := &Consumer{
		intake: func(_ context.Context, p domain.IntakeTaskPayload) error {
			gotIntake = p
			return nil
		},
		hr: func(_ context.Context, p domain.HRTaskPayload) error {
			gotHR = p
			return nil
		},
	}

	intakeRec, err := intakeRecord(domain.IntakeTaskPayload{CorrelationID: "cv-1"})
	require.NoError(t, err)
	require.NoError(t, c.processRecord(context.Background(), intakeRec))
	assert.Equal(t, "cv-1", gotIntake.CorrelationID)

	hrRec, err := hrRecord(domain.HRTaskPayload{HRJobID: "job-1"})
	require.NoError(t, err)
	require.NoError(t, c.processRecord(context.Background(), hrRec))
	assert.Equal(t, "job-1", gotHR.HRJobID)

	// Unknown topics are dropped, not retried.
	assert.NoError(t, c.processRecord(context.Background(), &kgo.Record{Topic: "other"}))
}

func TestProcessRecordPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	c := &Consumer{
		intake: func(context.Context, domain.IntakeTaskPayload) error { return boom },
	}
	rec, err := intakeRecord(domain.IntakeTaskPayload{CorrelationID: "cv-1"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.processRecord(context.Background(), rec), boom)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(domain.ErrUpstreamTimeout))
	assert.True(t, isTransient(domain.ErrUpstreamRateLimit))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(domain.ErrSchemaInvalid))
	assert.False(t, isTransient(errors.New("parse failure")))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, "tx-1")
	assert.Error(t, err)
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer(nil, "g", "tx", 4, nil, nil)
	assert.Error(t, err)
	_, err = NewConsumer([]string{"localhost:19092"}, "", "tx", 4, nil, nil)
	assert.Error(t, err)
}
