package throttle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login:failures:"

// Limiter counts failed logins per subject inside a window.
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, error)
	Fail(ctx context.Context, subject string) error
	Reset(ctx context.Context, subject string) error
}

type RedisLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	count, err := l.client.Get(ctx, key(subject)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < l.maxAttempts, nil
}

// Fail records one failed attempt. The window starts at the first failure.
func (l *RedisLimiter) Fail(ctx context.Context, subject string) error {
	k := key(subject)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return l.client.Expire(ctx, k, l.window).Err()
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, subject string) error {
	return l.client.Del(ctx, key(subject)).Err()
}

// Noop never throttles. It is used when no Redis is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
func (Noop) Fail(context.Context, string) error          { return nil }
func (Noop) Reset(context.Context, string) error         { return nil }

func key(subject string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(subject))
}
