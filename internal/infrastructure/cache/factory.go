package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/infrastructure/config"
)

// ResultCacheFactory creates result caches based on configuration
type ResultCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ResultCacheFactoryOption is a functional option for configuring the factory
type ResultCacheFactoryOption func(*ResultCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ResultCacheFactoryOption {
	return func(f *ResultCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) ResultCacheFactoryOption {
	return func(f *ResultCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewResultCacheFactory creates a new factory
func NewResultCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...ResultCacheFactoryOption) *ResultCacheFactory {
	f := &ResultCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-backed result cache
func (f *ResultCacheFactory) CreateRedisCache() (ResultCache, error) {
	c, err := NewRedisResultCache(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.cacheConfig.Prefix, f.cacheConfig.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis result cache: %w", err)
	}
	return c, nil
}

// CreateInMemoryCache creates an in-memory result cache.
// Entries are not shared across process instances.
func (f *ResultCacheFactory) CreateInMemoryCache() ResultCache {
	return NewInMemoryResultCache(f.cacheConfig.TTL)
}

// CreateCache creates the configured cache. A disabled cache is a no-op;
// the redis backend falls back to memory when Redis is unreachable and
// fallback is allowed.
func (f *ResultCacheFactory) CreateCache() (ResultCache, error) {
	if !f.cacheConfig.Enabled {
		f.logger.Info("result cache disabled")
		return NopResultCache{}, nil
	}

	if f.cacheConfig.Backend != "redis" {
		f.logger.Info("using in-memory result cache", zap.Duration("ttl", f.cacheConfig.TTL))
		return f.CreateInMemoryCache(), nil
	}

	c, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis result cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis result cache unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory result cache",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
