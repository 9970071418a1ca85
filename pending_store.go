package nexauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "n2p"

var errPendingBackend = errors.New("pending token backend unavailable")

// pendingTokenStore makes 2fa_pending tokens single-use. A pending token
// is time-bound by its signature, but a successful verification also
// writes its jti to this deny-list for the token's remaining lifetime, so
// the same token cannot complete a second verification or setup.
type pendingTokenStore struct {
	redis redis.UniversalClient
}

func newPendingTokenStore(redisClient redis.UniversalClient) *pendingTokenStore {
	return &pendingTokenStore{redis: redisClient}
}

func (s *pendingTokenStore) key(jti string) string {
	return pendingKeyPrefix + ":" + jti
}

// Revoke marks the jti as spent for ttl. A zero ttl means the token is
// already past expiry and needs no deny-list entry.
func (s *pendingTokenStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errPendingBackend, err)
	}
	return nil
}

// IsRevoked reports whether the jti already completed a verification.
func (s *pendingTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errPendingBackend, err)
	}
	return n > 0, nil
}
