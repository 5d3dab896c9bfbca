// Package kafka wraps the franz-go client for audit fan-out. The claim gate
// only produces; downstream compliance tooling consumes the topic.
package kafka

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"claimgate/internal/platform/config"
)

// Producer publishes records to the audit topic.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer creates a Kafka producer from configuration. Returns (nil, nil)
// when no brokers are configured so callers can treat Kafka as optional.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Publish produces a record asynchronously. Delivery failures are logged and
// dropped; audit fan-out must never block or fail the primary operation.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) {
	record := &kgo.Record{Key: []byte(key), Value: value}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit record delivery failed",
				"topic", p.topic,
				"key", string(r.Key),
				"error", err,
			)
		}
	})
}

// Close flushes pending records and shuts the client down.
func (p *Producer) Close() {
	p.client.Close()
}
