// Package cache is a typed wrapper around an in-memory expiring cache.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Cache[K comparable, V any] struct {
	cache       *gocache.Cache
	keyToString func(K) string
}

type CacheConfig struct {
	TTL time.Duration
}

func NewCache[K comparable, V any](config CacheConfig, keyToString func(K) string) *Cache[K, V] {
	if config.TTL == 0 {
		config.TTL = 1 * time.Hour
	}

	return &Cache[K, V]{
		cache:       gocache.New(config.TTL, config.TTL*2),
		keyToString: keyToString,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	value, found := c.cache.Get(c.keyToString(key))
	if !found {
		var zero V
		return zero, false
	}

	typedValue, ok := value.(V)
	return typedValue, ok
}

// Set stores value under the default TTL, restarting its expiry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.cache.Set(c.keyToString(key), value, gocache.DefaultExpiration)
}

func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.cache.Set(c.keyToString(key), value, ttl)
}

func (c *Cache[K, V]) InvalidateKey(key K) {
	c.cache.Delete(c.keyToString(key))
}

func (c *Cache[K, V]) Clear() {
	c.cache.Flush()
}

func (c *Cache[K, V]) Len() int {
	return c.cache.ItemCount()
}
