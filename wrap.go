package cachefront

import (
	"context"
	"time"
)

type wrapConfig struct {
	disableCache bool
	forceRefresh bool
	ttl          *time.Duration
}

// WrapOption adjusts a single Wrap call.
type WrapOption func(*wrapConfig)

// WithWrapTTL sets an explicit TTL for the entry Wrap writes on a miss,
// overriding the cache default. Zero means the entry never expires.
func WithWrapTTL(ttl time.Duration) WrapOption {
	return func(cfg *wrapConfig) { cfg.ttl = &ttl }
}

// WithForceRefresh makes Wrap invoke the producer even when a cached value
// exists, replacing it with the fresh result.
func WithForceRefresh() WrapOption {
	return func(cfg *wrapConfig) { cfg.forceRefresh = true }
}

// WithDisableCache makes Wrap call the producer directly, without reading
// from or writing to the store.
func WithDisableCache() WrapOption {
	return func(cfg *wrapConfig) { cfg.disableCache = true }
}

// Wrap memoizes produce under key: it returns the cached value when one is
// live, and otherwise invokes produce, stores the result, and returns it.
// Producer errors propagate to the caller and leave the store untouched for
// that key.
//
// Without WithSingleFlight on the cache, concurrent Wrap calls for the same
// missing key each run their own producer.
func (c *Cache[V]) Wrap(ctx context.Context, key string, produce func(context.Context) (V, error), opts ...WrapOption) (V, error) {
	var cfg wrapConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.disableCache {
		return produce(ctx)
	}

	value, ok, err := c.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if ok && !cfg.forceRefresh {
		return value, nil
	}

	if c.group != nil {
		shared, err, _ := c.group.Do(key, func() (any, error) {
			return c.produce(ctx, key, produce, cfg)
		})
		if err != nil {
			var zero V
			return zero, err
		}
		return shared.(V), nil
	}
	return c.produce(ctx, key, produce, cfg)
}

func (c *Cache[V]) produce(ctx context.Context, key string, produce func(context.Context) (V, error), cfg wrapConfig) (V, error) {
	value, err := produce(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	ttl := c.DefaultTTL()
	if cfg.ttl != nil {
		ttl = *cfg.ttl
	}
	if err := c.write(ctx, key, value, ttl); err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}
