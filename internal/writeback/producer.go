// Package writeback publishes accepted answers to the durable write-back
// topic (spec §4.7 step 4, SPEC_FULL.md §C). Enqueue failures are logged
// and counted by the caller; beyond the Kafka client's own request retries,
// this package adds no retry loop and no local buffer.
package writeback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
)

// DefaultTopic is the write-back topic name.
const DefaultTopic = "arla-answer-writeback"

// Producer publishes queuebuilder.WriteRecord values to the write-back
// topic. It satisfies the queuebuilder writebackProducer interface.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Config holds the franz-go client configuration.
type Config struct {
	Brokers []string
	Topic   string
}

// NewProducer constructs a Producer. Unlike a transactional exactly-once
// producer, this is a plain non-transactional producer: durable-write
// ordering only needs to be per-proposal, and ProduceSync already gives
// at-least-once delivery without the overhead of a transactional ID.
func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("writeback: no seed brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("writeback: create client: %w", err)
	}

	return &Producer{client: client, topic: topic, logger: logger}, nil
}

// NewProducerFromClient wraps an already-constructed client, for tests
// that need to inject a fake broker or stub transport.
func NewProducerFromClient(client *kgo.Client, topic string, logger *slog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{client: client, topic: topic, logger: logger}
}

// Publish serializes the record as JSON and produces it synchronously,
// keyed by proposal pid so all writes for one proposal stay ordered on
// one partition.
func (p *Producer) Publish(ctx context.Context, record queuebuilder.WriteRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("writeback: marshal record: %w", err)
	}

	kgoRecord := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(record.ProposalPid),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "question_id", Value: []byte(record.QuestionID)},
		},
	}

	result := p.client.ProduceSync(ctx, kgoRecord)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("writeback: produce: %w", err)
	}

	p.logger.Debug("writeback: record published", "proposalPid", record.ProposalPid, "questionId", record.QuestionID)
	return nil
}

// Close releases the underlying client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
