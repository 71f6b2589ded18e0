package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheClosed is returned by operations on a closed cache
var ErrCacheClosed = errors.New("cache: closed")

// ResultCache stores JSON-encoded query results with a TTL.
//
// A miss is reported as (false, nil). Errors mean the backend failed and
// callers should fall through to the source of truth.
type ResultCache interface {
	// Get decodes the cached value for key into dest
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl; a non-positive ttl uses the default
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// InvalidatePrefix removes every key starting with prefix
	InvalidatePrefix(ctx context.Context, prefix string) error

	// Close releases backend resources
	Close() error
}

// Key joins parts into a cache key. Empty parts are kept so that
// "hot::Toys" and "hot:Toys:" stay distinct.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// ---------------------------------------------------------------------------
// NopResultCache
// ---------------------------------------------------------------------------

// NopResultCache never stores anything. It is used when caching is disabled.
type NopResultCache struct{}

func (NopResultCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NopResultCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (NopResultCache) InvalidatePrefix(context.Context, string) error { return nil }
func (NopResultCache) Close() error { return nil }

var _ ResultCache = NopResultCache{}
