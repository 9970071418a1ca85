package nexauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const loginFailKeyPrefix = "nlf"

var errLimiterBackend = errors.New("login limiter backend unavailable")

// loginLimiter enforces a fixed-window budget of failed password checks
// per account using a Redis counter. The window starts at the first
// failure and the counter disappears with its TTL; a successful login
// clears it early.
type loginLimiter struct {
	redis  redis.UniversalClient
	config LoginThrottleConfig
}

func newLoginLimiter(redisClient redis.UniversalClient, cfg LoginThrottleConfig) *loginLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &loginLimiter{redis: redisClient, config: cfg}
}

func loginFailKey(email string) string {
	return loginFailKeyPrefix + ":" + strings.ToLower(email)
}

// Check reports whether the account is over its failure budget.
func (l *loginLimiter) Check(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, loginFailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", errLimiterBackend, err)
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrLoginThrottled
	}
	return nil
}

// RecordFailure counts one failed password check against the account.
func (l *loginLimiter) RecordFailure(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	key := loginFailKey(email)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errLimiterBackend, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errLimiterBackend, err)
		}
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *loginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, loginFailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLimiterBackend, err)
	}
	return nil
}
