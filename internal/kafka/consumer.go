package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-questbooking/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message. Returning an error redelivers the same
// message after a backoff; decode failures should be logged and swallowed.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
	// MaxRetryInterval caps the wait between redeliveries of a failing message.
	MaxRetryInterval time.Duration
}

// NewConsumer joins groupID and reads every topic in topics.
func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, log: log, MaxRetryInterval: 30 * time.Second}
}

// Run fetches, handles and commits messages until ctx is cancelled. Offsets
// are committed only after the handler succeeds, so delivery is at least once.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.Info("KAFKA", fmt.Sprintf("Consumer started for group %s", c.reader.Config().GroupID))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.log.Info("KAFKA", "Consumer stopped")
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error fetching message: %v", err))
			return err
		}

		if err := c.handleWithRetry(ctx, handle, msg); err != nil {
			// only a cancelled context ends the retry loop
			c.log.Info("KAFKA", "Consumer stopped before message was handled")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, msg.Topic, err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, handle Handler, msg kafka.Message) error {
	expo := backoff.NewExponentialBackOff()
	expo.MaxInterval = c.MaxRetryInterval
	expo.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return handle(ctx, msg)
	}, backoff.WithContext(expo, ctx), func(err error, wait time.Duration) {
		c.log.Warn("KAFKA", fmt.Sprintf("Handler failed for %s@%d, retrying in %s: %v", msg.Topic, msg.Offset, wait, err))
	})
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
