package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// TaskTTL bounds how long a cached task may outlive its last write.
const TaskTTL = 24 * time.Hour

func taskKey(userID, taskID string) string { return "task:" + userID + ":" + taskID }

// TaskCache is a read-through cache in front of the task repository.
// Postgres stays the source of truth; a miss is never an error.
type TaskCache interface {
	Put(ctx context.Context, task *domain.Task) error
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, userID, taskID string) (*domain.Task, error)
	Delete(ctx context.Context, userID string, taskIDs ...string) error
}

type taskCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTaskCache creates a Redis-backed TaskCache using TaskTTL.
func NewTaskCache(client *redis.Client) TaskCache {
	return &taskCache{client: client, ttl: TaskTTL}
}

func (c *taskCache) Put(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	if err := c.client.Set(ctx, taskKey(task.UserID, task.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set task %s: %w", task.ID, err)
	}
	return nil
}

func (c *taskCache) Get(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	data, err := c.client.Get(ctx, taskKey(userID, taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get task %s: %w", taskID, err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

func (c *taskCache) Delete(ctx context.Context, userID string, taskIDs ...string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = taskKey(userID, id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del tasks: %w", err)
	}
	return nil
}
