package cache

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/application/idempotency"
	"github.com/anticipa/backend/internal/infrastructure/config"
)

// HintStore is an idempotency hint store that owns resources
type HintStore interface {
	idempotency.HintStore
	io.Closer
}

// HintStoreFactory creates hint stores based on configuration
type HintStoreFactory struct {
	cfg                   config.IdempotencyConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// HintStoreFactoryOption is a functional option for configuring the factory
type HintStoreFactoryOption func(*HintStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) HintStoreFactoryOption {
	return func(f *HintStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) HintStoreFactoryOption {
	return func(f *HintStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewHintStoreFactory creates a new factory
func NewHintStoreFactory(cfg config.IdempotencyConfig, redisCfg config.RedisConfig, opts ...HintStoreFactoryOption) *HintStoreFactory {
	f := &HintStoreFactory{
		cfg:                   cfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore builds the configured store. It returns nil for "none".
func (f *HintStoreFactory) CreateStore() (HintStore, error) {
	switch f.cfg.HintStore {
	case config.HintStoreNone:
		return nil, nil
	case config.HintStoreMemory:
		return NewInMemoryHintStore(f.cfg.CleanupInterval), nil
	case config.HintStoreRedis:
		store, err := NewRedisHintStore(f.redisConfig)
		if err == nil {
			f.logger.Info("using Redis idempotency hint store")
			return store, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis hint store unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory idempotency hints", zap.Error(err))
		return NewInMemoryHintStore(f.cfg.CleanupInterval), nil
	default:
		return nil, fmt.Errorf("unknown hint store %q", f.cfg.HintStore)
	}
}
