package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// DefaultLockTTL caps how long a crashed holder can block a user's scheduling.
const DefaultLockTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds our token, so a holder
// whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLock serialises scheduling runs per user across all replicas.
type UserLock interface {
	// Acquire takes the user's lock or returns *domain.ScheduleInProgressError.
	// The returned func releases it and is safe to call once.
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

type userLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserLock returns a Redis-backed UserLock whose leases expire after ttl.
func NewUserLock(client *redis.Client, ttl time.Duration) UserLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &userLock{client: client, ttl: ttl}
}

func lockKey(userID string) string { return "lock:schedule:" + userID }

func (l *userLock) Acquire(ctx context.Context, userID string) (func(), error) {
	token := uuid.New().String()
	key := lockKey(userID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock for user %s: %w", userID, err)
	}
	if !ok {
		return nil, &domain.ScheduleInProgressError{UserID: userID}
	}

	return func() {
		// Detached so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}
