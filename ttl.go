package cachefront

import "time"

// SetDefaultTTL changes the default TTL for subsequent writes that don't
// carry an explicit TTL. Already-stored entries keep the expiration they
// were written with. Zero means new entries never expire.
func (c *Cache[V]) SetDefaultTTL(ttl time.Duration) {
	c.ttl.Store(int64(ttl))
}

// DefaultTTL returns the TTL currently applied to writes without an
// explicit TTL.
func (c *Cache[V]) DefaultTTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// expiresAt converts a resolved TTL into an absolute expiration instant at
// write time. Zero is the "never expires" sentinel and maps to the zero
// time; negative durations pass through and land in the past.
func (c *Cache[V]) expiresAt(ttl time.Duration) time.Time {
	if ttl == 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}
