// Package lock serializes work on a single tracker across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spigell/resume-updater/internal/utils"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Release gives a lock back. It is safe to call once.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Nop never blocks. It keeps the last-writer-wins behaviour of unsynchronized ingestion.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
	Wait    time.Duration `mapstructure:"wait"`
	Prefix  string        `mapstructure:"prefix"`
}

const (
	defaultTTL    = 30 * time.Second
	defaultWait   = 10 * time.Second
	defaultPrefix = "resume-updater:lock:"
	pollInterval  = 100 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX lock with expiry. A holder that dies loses the lock after TTL.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	prefix string

	newToken func() string
}

func NewRedis(rdb redis.UniversalClient, cfg Config) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Wait < 0 {
		cfg.Wait = 0
	} else if cfg.Wait == 0 {
		cfg.Wait = defaultWait
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	return &Redis{
		rdb:      rdb,
		ttl:      cfg.TTL,
		wait:     cfg.Wait,
		prefix:   cfg.Prefix,
		newToken: func() string { return uuid.NewString() },
	}
}

// Acquire polls until the lock is free or the wait budget is spent.
func (l *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := l.prefix + key
	token := l.newToken()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.release(fullKey, token), nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotAcquired)
		}

		if err := utils.WaitFor(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

func (l *Redis) release(fullKey, token string) Release {
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}
}
