package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrMissingUserKey is returned for a message with no user key on any topic
// but the DLQ. Without it the message loses per-user ordering.
var ErrMissingUserKey = errors.New("kafka: message has no user key")

// Producer publishes messages to a Kafka topic. key is the owning user's ID.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer connected to the given brokers.
// Messages are partitioned by key, so everything for one user stays ordered.
func NewProducer(brokers []string) Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &producer{writer: w}
}

func (p *producer) Publish(ctx context.Context, topic, userID string, value []byte) error {
	if userID == "" && topic != TopicDLQ {
		return fmt.Errorf("publish to %s: %w", topic, ErrMissingUserKey)
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(userID),
		Value:   value,
		Headers: traceHeaders(ctx),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}

// PublishJSON marshals v and publishes it through p.
func PublishJSON(ctx context.Context, p Producer, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.Publish(ctx, topic, key, data)
}

// PublishDeadLetter forwards msg to TopicDLQ with reason, under the same user
// key it arrived with. Malformed messages may have no key at all.
func PublishDeadLetter(ctx context.Context, p Producer, msg Message, reason error, at time.Time) error {
	return PublishJSON(ctx, p, TopicDLQ, msg.UserID(), NewDeadLetter(msg, reason, at.UTC()))
}
