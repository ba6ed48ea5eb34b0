package tracker

import "time"

// cacheKey identifies a cached upstream read by operation and argument.
type cacheKey struct {
	op  string
	arg string
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// ttlCache is a time-bounded cache owned by a single tracker goroutine. It is not safe for concurrent use.
type ttlCache[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[K]cacheEntry[V]
}

func newTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *ttlCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &ttlCache[K, V]{ttl: ttl, now: now, entries: make(map[K]cacheEntry[V])}
}

func (c *ttlCache[K, V]) get(key K) (V, bool) {
	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[K, V]) put(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.entries[key] = cacheEntry[V]{value: value, expires: c.now().Add(c.ttl)}
}
