package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// Message wraps a Kafka message with the fields services need. Every topic is
// keyed by user ID, so one user's messages arrive in order on one partition.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// UserID is the partition key the message was published under.
func (m Message) UserID() string { return string(m.Key) }

// HandlerFunc processes a single Kafka message.
// Return nil to commit the offset. An error leaves it uncommitted for redelivery,
// so handlers route poison messages to the DLQ themselves and return nil.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and consumer group.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // manual commit only
		StartOffset:    kafka.FirstOffset,
	})
	return &consumer{reader: r, logger: logger.With(slog.String("topic", topic), slog.String("group", groupID))}
}

// Subscribe reads messages in a loop until ctx is cancelled.
// Offsets are committed only after the handler returns nil (at-least-once delivery).
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		msg := Message{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Time:      m.Time,
		}
		if err := handler(withRemoteSpan(ctx, m.Headers), msg); err != nil {
			telemetry.MessagesConsumed.WithLabelValues(m.Topic, "redeliver").Inc()
			c.logger.Error("message handler failed, skipping commit",
				slog.String("user_id", msg.UserID()),
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit kafka offset",
				slog.String("user_id", msg.UserID()),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}
		telemetry.MessagesConsumed.WithLabelValues(m.Topic, "committed").Inc()
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
