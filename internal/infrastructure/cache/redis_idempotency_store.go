package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mockly/billing/internal/domain/shared"
)

// DefaultKeyPrefix namespaces webhook delivery ids in Redis
const DefaultKeyPrefix = "billing:webhook:"

// RedisIdempotencyStore shares webhook delivery ids across instances
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(ctx context.Context, opts *redis.Options, keyPrefix string) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	store := NewRedisIdempotencyStoreWithClient(client, keyPrefix)
	store.owned = true
	return store, nil
}

// NewRedisIdempotencyStoreWithClient wraps an existing client. The client is
// not closed by Close.
func NewRedisIdempotencyStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed records deliveryID with SET NX so only one caller wins
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(deliveryID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery %s: %w", deliveryID, err)
	}
	return ok, nil
}

// IsProcessed reports whether deliveryID is recorded
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, deliveryID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery %s: %w", deliveryID, err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client when the store created it
func (s *RedisIdempotencyStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *RedisIdempotencyStore) key(deliveryID string) string {
	return s.keyPrefix + deliveryID
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
