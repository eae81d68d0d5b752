package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"MailchimpPublisher/internal/ports"
)

// RedisLocker holds run locks in Redis so that only one instance publishes or sweeps at a time.
// A held lock is refreshed every third of its ttl until released.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.Locker = (*RedisLocker)(nil)

// NewRedisClient opens a pooled client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          0,
		PoolSize:    10,
		DialTimeout: 2 * time.Second,
	})
}

// NewRedisLocker wraps a go-redis client; ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(rdb redis.Scripter, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

// Acquire obtains key without waiting.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	held, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ports.ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	stop := keepAlive(context.WithoutCancel(ctx), l.ttl/3, func(ctx context.Context) error {
		return held.Refresh(ctx, l.ttl, nil)
	}, l.logger.With("key", key))

	return func(ctx context.Context) error {
		stop()
		err := held.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired while running
			return nil
		}
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// keepAlive calls refresh every interval until the returned stop func is called.
// stop waits for the loop to exit. A lock taken over by another holder ends the loop.
func keepAlive(ctx context.Context, interval time.Duration, refresh func(context.Context) error, logger *slog.Logger) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := refresh(ctx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return
			case errors.Is(err, redislock.ErrNotObtained):
				logger.Error("run lock lost before release", "error", err)
				return
			default:
				logger.Warn("run lock refresh failed", "error", err)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
