// Package redis contains Redis implementations of repository interfaces.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

var _ repository.RefreshTokenRepository = (*RefreshStore)(nil)

const (
	refreshPrefix        = "refresh:"
	refreshAccountPrefix = "refresh:account:"
)

// consumeScript deletes the token and drops it from its owner's index in one
// step. KEYS[1] = token key; ARGV[1] = index prefix, ARGV[2] = jti.
var consumeScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if not owner then
	return false
end
redis.call('DEL', KEYS[1])
redis.call('SREM', ARGV[1] .. owner, ARGV[2])
return owner
`)

// RefreshStore keeps live refresh token ids with a TTL matching the token
// lifetime, plus a per-account index used to revoke everything at once.
type RefreshStore struct {
	client redis.UniversalClient
}

// NewRefreshStore creates a Redis-backed refresh token store.
func NewRefreshStore(client redis.UniversalClient) *RefreshStore {
	return &RefreshStore{client: client}
}

// Save records jti for accountID.
func (s *RefreshStore) Save(ctx context.Context, jti string, accountID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	idx := refreshAccountPrefix + accountID.String()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshPrefix+jti, accountID.String(), ttl)
	pipe.SAdd(ctx, idx, jti)
	// The index lives as long as the newest token in it.
	pipe.Expire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Consume removes jti and returns its owner. A second Consume of the same
// jti reports errs.ErrNotFound, which is what makes rotation single-use.
func (s *RefreshStore) Consume(ctx context.Context, jti string) (uuid.UUID, error) {
	v, err := consumeScript.Run(ctx, s.client, []string{refreshPrefix + jti}, refreshAccountPrefix, jti).Text()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, errs.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume refresh token: %w", err)
	}
	id, err := uuid.FromString(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume refresh token: bad owner: %w", err)
	}
	return id, nil
}

// Revoke deletes a single jti.
func (s *RefreshStore) Revoke(ctx context.Context, jti string) error {
	_, err := s.Consume(ctx, jti)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAll deletes every refresh token issued to accountID.
func (s *RefreshStore) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	idx := refreshAccountPrefix + accountID.String()
	jtis, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(jtis)+1)
	for _, j := range jtis {
		keys = append(keys, refreshPrefix+j)
	}
	keys = append(keys, idx)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// Ping reports Redis reachability; used by the health watcher.
func (s *RefreshStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
