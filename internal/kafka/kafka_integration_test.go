//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcKafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
)

var testBrokers []string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	ctr, err := tcKafka.Run(ctx, "confluentinc/confluent-local:7.7.1",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Kafka Server started").
				WithStartupTimeout(90*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start kafka container: %v", err)
	}
	defer ctr.Terminate(ctx) //nolint:errcheck

	brokers, err := ctr.Brokers(ctx)
	if err != nil {
		log.Fatalf("kafka brokers: %v", err)
	}
	testBrokers = brokers

	return m.Run()
}

func uniqueTopic(t *testing.T, base string) string {
	t.Helper()
	topic := fmt.Sprintf("%s-%d", base, time.Now().UnixNano())

	// The first publish can race auto-creation and fail with UNKNOWN_TOPIC_OR_PARTITION.
	conn, err := kafkago.DialContext(context.Background(), "tcp", testBrokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	return topic
}

func TestKafka_ScheduledEventRoundTrip(t *testing.T) {
	topic := uniqueTopic(t, "scheduled")
	producer := kafka.NewProducer(testBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck

	start := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	ev := kafka.TasksScheduledEvent{
		UserID:      "u1",
		AutoSlot:    true,
		ScheduledAt: start.Add(-time.Hour),
		Tasks: []kafka.ScheduledTask{{
			ID: "t1", Title: "review contract", Priority: domain.PriorityHigh,
			Start: start, End: start.Add(time.Hour),
		}},
	}
	ctx := context.Background()
	require.NoError(t, kafka.PublishJSON(ctx, producer, topic, ev.UserID, ev))

	consumer := kafka.NewConsumer(testBrokers, topic, "group-roundtrip", slog.Default())
	t.Cleanup(func() { consumer.Close() }) //nolint:errcheck

	received := make(chan kafka.Message, 1)
	consumerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	go func() {
		consumer.Subscribe(consumerCtx, func(_ context.Context, m kafka.Message) error { //nolint:errcheck
			received <- m
			cancel()
			return nil
		})
	}()

	select {
	case m := <-received:
		assert.Equal(t, "u1", string(m.Key))
		var got kafka.TasksScheduledEvent
		require.NoError(t, json.Unmarshal(m.Value, &got))
		assert.Equal(t, ev.Tasks[0].Title, got.Tasks[0].Title)
		assert.True(t, got.Tasks[0].Start.Equal(start))
	case <-consumerCtx.Done():
		t.Fatal("timed out waiting for Kafka message")
	}
}

// A handler error must leave the offset uncommitted so the next consumer in
// the group gets the message again.
func TestKafka_Consumer_OffsetNotCommittedOnError(t *testing.T) {
	topic := uniqueTopic(t, "no-commit")
	groupID := fmt.Sprintf("group-no-commit-%d", time.Now().UnixNano())

	producer := kafka.NewProducer(testBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck

	ctx := context.Background()
	payload := []byte(`{"user_id":"u1","source":"email","payload":{}}`)
	require.NoError(t, producer.Publish(ctx, topic, "u1", payload))

	consumer1 := kafka.NewConsumer(testBrokers, topic, groupID, slog.Default())
	ctx1, cancel1 := context.WithTimeout(ctx, 30*time.Second)

	seen := make(chan struct{}, 1)
	go func() {
		consumer1.Subscribe(ctx1, func(_ context.Context, _ kafka.Message) error { //nolint:errcheck
			seen <- struct{}{}
			cancel1()
			return errors.New("storage unavailable")
		})
	}()

	select {
	case <-seen:
	case <-ctx1.Done():
		t.Fatal("consumer1 timed out waiting for message")
	}

	time.Sleep(300 * time.Millisecond)
	consumer1.Close() //nolint:errcheck

	consumer2 := kafka.NewConsumer(testBrokers, topic, groupID, slog.Default())
	t.Cleanup(func() { consumer2.Close() }) //nolint:errcheck

	redelivered := make(chan []byte, 1)
	ctx2, cancel2 := context.WithTimeout(ctx, 30*time.Second)
	defer cancel2()

	go func() {
		consumer2.Subscribe(ctx2, func(_ context.Context, m kafka.Message) error { //nolint:errcheck
			redelivered <- m.Value
			cancel2()
			return nil
		})
	}()

	select {
	case got := <-redelivered:
		assert.Equal(t, payload, got, "message should be redelivered after non-commit")
	case <-ctx2.Done():
		t.Fatal("message was NOT redelivered; offset may have been committed")
	}
}
