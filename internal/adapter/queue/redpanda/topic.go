package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Topics. Intake tasks are keyed by correlation id so one CV's pipeline
// stages stay ordered within a partition.
const (
	TopicIntake     = "cv-intake"
	TopicHRAnalysis = "hr-analysis"
)

// intakePartitions spreads intakes for parallel workers. HR analyses are
// rare and long-running, one partition is enough.
const intakePartitions = 8

// kafka error code 36 = TOPIC_ALREADY_EXISTS.
const errTopicExists = 36

// createTopicIfNotExists issues a CreateTopics request and treats an
// already existing topic as success.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	if topic == "" {
		return fmt.Errorf("op=redpanda.createTopic: %w", errEmptyTopic)
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replication
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.createTopic: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.createTopic: unexpected response type %T", resp)
	}
	for _, tr := range createResp.Topics {
		if tr.ErrorCode == 0 {
			slog.Info("topic created", slog.String("topic", tr.Topic), slog.Int("partitions", int(partitions)))
			continue
		}
		if tr.ErrorCode == errTopicExists {
			continue
		}
		msg := ""
		if tr.ErrorMessage != nil {
			msg = *tr.ErrorMessage
		}
		return fmt.Errorf("op=redpanda.createTopic: %s (code %d)", msg, tr.ErrorCode)
	}
	return nil
}
