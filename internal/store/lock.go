package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "discovery:lock:trip:"

var ErrLockHeld = errors.New("conversation lock is held")

// compare-and-delete so an expired holder cannot remove a newer lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out one lock per trip. Locks expire after ttl so a crashed
// worker cannot block a conversation for longer than that.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	newToken func() string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, newToken: uuid.NewString}
}

type Lock struct {
	client *redis.Client
	key    string
	token  string
}

func lockKey(tripID int64) string {
	return fmt.Sprintf("%s%d", lockKeyPrefix, tripID)
}

// Acquire takes the lock for tripID or returns ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, tripID int64) (*Lock, error) {
	key := lockKey(tripID)
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release drops the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	return nil
}
