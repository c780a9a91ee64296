package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Leader elects one instance among replicas sharing key.
type Leader interface {
	// TryLead acquires or renews leadership and reports whether this instance holds it.
	TryLead(ctx context.Context) (bool, error)
	// Resign gives up leadership if held.
	Resign(ctx context.Context) error
}

type leader struct {
	client     *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLeader returns a Redis SETNX-based Leader. Leadership lapses after ttl
// unless TryLead is called again.
func NewLeader(client *redis.Client, key, instanceID string, ttl time.Duration) Leader {
	return &leader{client: client, key: key, instanceID: instanceID, ttl: ttl}
}

func (l *leader) TryLead(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader election %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renewal %s: %w", l.key, err)
	}
	return renewed == 1, nil
}

func (l *leader) Resign(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("resign %s: %w", l.key, err)
	}
	return nil
}
