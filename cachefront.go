// Package cachefront provides a thin, TTL-aware caching front over pluggable
// key/value storage backends.
//
// The Cache decides when an entry is expired, how default and per-call TTLs
// are resolved, and offers a memoized Wrap primitive for expensive
// computations. Everything else (where entries live, how values are
// serialized, how keys map to storage locations) belongs to the Store
// adapter chosen at construction time (memory, fsstore, redis, postgres,
// sqlite, httpstore).
//
// Expiration is lazy: an expired entry is evicted the first time Get sees
// it, never by a background sweep in the core.
package cachefront

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache orchestrates TTL semantics on top of a Store.
//
// All methods are safe for concurrent use as long as the underlying Store
// is. The cache itself never serializes access to a key: concurrent writes
// race with last-write-wins semantics, decided by the store.
type Cache[V any] struct {
	store Store[V]
	ttl   atomic.Int64 // default TTL in nanoseconds; zero means no expiration
	group *singleflight.Group

	now func() time.Time
}

// Option configures a Cache at construction time.
type Option[V any] func(*Cache[V])

// WithTTL sets the default TTL applied by Set and Wrap when no explicit TTL
// is given. Zero means entries never expire.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) { c.ttl.Store(int64(ttl)) }
}

// WithSingleFlight coalesces concurrent Wrap misses for the same key so the
// producer runs once and all callers share its result. Off by default:
// without it, concurrent misses each invoke their own producer.
func WithSingleFlight[V any]() Option[V] {
	return func(c *Cache[V]) { c.group = new(singleflight.Group) }
}

// New builds a Cache around the given storage adapter.
func New[V any](store Store[V], opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{store: store, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the value stored under key. Absent keys report (zero, false,
// nil). An expired entry is deleted from the store before the miss is
// reported; that cleanup is best effort and its failure never turns a
// detected expiry into a read failure. Because of it, Get is not read-only
// at the storage layer.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if entry.Meta().Expired(c.now()) {
		_ = c.store.Delete(ctx, key)
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// Set stores value under key using the cache's default TTL. The previous
// entry, if any, is fully replaced.
func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	return c.write(ctx, key, value, c.DefaultTTL())
}

// SetWithTTL stores value under key with an explicit TTL, overriding the
// default. A ttl of zero is the "never expires" sentinel, not a
// zero-duration lifetime. Negative values are stored verbatim and yield an
// already-expired entry.
func (c *Cache[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error {
	return c.write(ctx, key, value, ttl)
}

// Delete removes key from the store. Deleting an absent key is not an
// error.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Has reports whether a live entry exists for key. Unlike Get it fetches
// only metadata and never evicts, so probing an expired entry leaves it in
// the store until Get or Delete touches it.
func (c *Cache[V]) Has(ctx context.Context, key string) (bool, error) {
	meta, ok, err := c.store.GetMeta(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return !meta.Expired(c.now()), nil
}

// Meta lists metadata for every stored entry, including entries that are
// expired but not yet evicted. Callers wanting live entries only should
// filter with EntryMeta.Expired.
func (c *Cache[V]) Meta(ctx context.Context) ([]EntryMeta, error) {
	return c.store.Meta(ctx)
}

// Clear removes all entries from the store.
func (c *Cache[V]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache[V]) write(ctx context.Context, key string, value V, ttl time.Duration) error {
	meta := EntryMeta{Key: key, ExpiresAt: c.expiresAt(ttl)}
	return c.store.Set(ctx, key, value, meta)
}
