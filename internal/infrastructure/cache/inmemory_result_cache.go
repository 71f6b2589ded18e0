package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultCleanupInterval = 5 * time.Minute

// memEntry is a cached JSON document with its expiration
type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryResultCache implements ResultCache with a map.
// It is suitable for single-instance deployments and testing.
type InMemoryResultCache struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	defaultTTL time.Duration
	now        func() time.Time
	stopChan   chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	closed     bool
}

// NewInMemoryResultCache creates an in-memory cache and starts a goroutine
// that drops expired entries
func NewInMemoryResultCache(defaultTTL time.Duration) *InMemoryResultCache {
	c := newInMemoryResultCache(defaultTTL, time.Now)
	c.wg.Add(1)
	go c.cleanupLoop(defaultCleanupInterval)
	return c
}

func newInMemoryResultCache(defaultTTL time.Duration, now func() time.Time) *InMemoryResultCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &InMemoryResultCache{
		entries:    make(map[string]memEntry),
		defaultTTL: defaultTTL,
		now:        now,
		stopChan:   make(chan struct{}),
	}
}

// Get decodes the cached value into dest. Expired entries are misses.
func (c *InMemoryResultCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false, ErrCacheClosed
	}
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

// Set stores the JSON encoding of value
func (c *InMemoryResultCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	c.entries[key] = memEntry{data: data, expiresAt: c.now().Add(ttl)}
	return nil
}

// InvalidatePrefix removes every entry whose key starts with prefix
func (c *InMemoryResultCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryResultCache) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.entries = make(map[string]memEntry)
		c.mu.Unlock()
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// Size returns the number of stored entries, expired ones included
func (c *InMemoryResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryResultCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryResultCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

var _ ResultCache = (*InMemoryResultCache)(nil)
