package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
)

const (
	DefaultTTL          = 10 * time.Second
	DefaultWait         = 2 * time.Second
	DefaultPollInterval = 20 * time.Millisecond
)

// Delete key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

type RedisConfig struct {
	Prefix       string
	TTL          time.Duration // lock expires if owner died without unlock
	Wait         time.Duration // how long Lock waits for busy key
	PollInterval time.Duration
}

type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "rewardledger:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.cfg.Prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("lock %s: redis error: %w", key, err)
		}
		if ok {
			return func() {
				// Use fresh context: caller context may be done already
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				releaseScript.Run(releaseCtx, l.client, []string{key}, token) //nolint:errcheck
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s busy: %w", key, apperrors.ErrStoreConflict)
		case <-ticker.C:
		}
	}
}
