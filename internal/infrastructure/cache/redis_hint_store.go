package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anticipa/backend/internal/application/idempotency"
	"github.com/anticipa/backend/internal/infrastructure/config"
)

const defaultHintKeyPrefix = "anticipa:idempotency:"

// RedisHintStore implements idempotency.HintStore using Redis so that all
// instances share the fast-path conflict check
type RedisHintStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisHintStore connects to Redis and verifies the connection
func NewRedisHintStore(cfg config.RedisConfig) (*RedisHintStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisHintStoreWithClient(client, ""), nil
}

// NewRedisHintStoreWithClient creates a store with an existing Redis client
func NewRedisHintStoreWithClient(client *redis.Client, keyPrefix string) *RedisHintStore {
	if keyPrefix == "" {
		keyPrefix = defaultHintKeyPrefix
	}
	return &RedisHintStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the hash recorded for key
func (s *RedisHintStore) Get(ctx context.Context, key string) (string, bool, error) {
	hash, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency hint: %w", err)
	}
	return hash, true, nil
}

// Put records hash for key with SET NX EX; an existing hint is kept
func (s *RedisHintStore) Put(ctx context.Context, key, hash string, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, s.keyPrefix+key, hash, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency hint: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisHintStore) Close() error {
	return s.client.Close()
}

// Ensure RedisHintStore implements idempotency.HintStore
var _ idempotency.HintStore = (*RedisHintStore)(nil)
