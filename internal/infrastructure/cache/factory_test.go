package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestseller/tracker/internal/infrastructure/config"
)

// unreachableRedis points at a port nothing listens on
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func TestResultCacheFactory_CreateCache(t *testing.T) {
	t.Run("disabled cache is a no-op", func(t *testing.T) {
		f := NewResultCacheFactory(config.CacheConfig{Enabled: false}, unreachableRedis)
		c, err := f.CreateCache()
		require.NoError(t, err)
		assert.IsType(t, NopResultCache{}, c)
	})

	t.Run("memory backend", func(t *testing.T) {
		f := NewResultCacheFactory(config.CacheConfig{Enabled: true, Backend: "memory", TTL: time.Minute}, unreachableRedis)
		c, err := f.CreateCache()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryResultCache{}, c)
	})

	t.Run("falls back to memory when redis is unreachable", func(t *testing.T) {
		f := NewResultCacheFactory(
			config.CacheConfig{Enabled: true, Backend: "redis"},
			unreachableRedis,
			WithLogger(zaptest.NewLogger(t)),
		)
		c, err := f.CreateCache()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryResultCache{}, c)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		f := NewResultCacheFactory(
			config.CacheConfig{Enabled: true, Backend: "redis"},
			unreachableRedis,
			WithInMemoryFallback(false),
		)
		_, err := f.CreateCache()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis result cache unavailable")
	})
}

func TestNewRedisResultCacheWithClient_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	c := NewRedisResultCacheWithClient(client, "", 0)
	defer c.Close()

	assert.Equal(t, defaultKeyPrefix, c.keyPrefix)
	assert.Equal(t, 5*time.Minute, c.defaultTTL)
	assert.Same(t, client, c.GetClient())
}
