package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-questbooking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Producer publishes to any topic through one shared writer. Messages are
// keyed by quest id so a quest's events stay ordered within a partition.
type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, log: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	if p.log != nil {
		p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s (%d bytes)", key, len(value)))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher drops every message. Used when KAFKA_ENABLED=false.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return nil
}
