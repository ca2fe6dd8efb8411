// Package lock keeps two bot processes from trading the same account at the
// same time, using a Redis key with a TTL as a lease.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another process")

// unlockLua deletes the key only when it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// client is the subset of the Redis API the lock uses.
type client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a lease lock backed by SET NX with a TTL.
type Redis struct {
	rdb      client
	closer   func() error
	unlockSc *redis.Script
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	l := newRedis(rdb)
	l.closer = rdb.Close
	return l, nil
}

func newRedis(c client) *Redis {
	return &Redis{rdb: c, unlockSc: redis.NewScript(unlockLua)}
}

func lockKey(key string) string { return "lock:" + key }

// Acquire takes the lock for ttl. The returned release function is safe to
// call more than once and works after ctx is cancelled. ErrLockHeld is
// returned when another holder has the key.
func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(rctx, l.rdb, []string{lk}, token).Err()
		})
	}
	return release, nil
}

func (l *Redis) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
