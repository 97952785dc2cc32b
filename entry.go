package cachefront

import (
	"context"
	"time"
)

// Entry is one stored item: a key, its raw value, and its expiration
// metadata. Entries are owned by the storage adapter; the cache front only
// reads and writes them through the Store contract.
type Entry[V any] struct {
	Key       string
	Value     V
	ExpiresAt time.Time // zero means the entry never expires
}

// Meta returns the entry's metadata without the value payload.
func (e Entry[V]) Meta() EntryMeta {
	return EntryMeta{Key: e.Key, ExpiresAt: e.ExpiresAt}
}

// EntryMeta is an Entry minus its value, for existence checks and
// enumeration where deserializing the payload would be wasted work.
// The JSON shape is shared by adapters that persist metadata directly.
type EntryMeta struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the entry is past its expiration at the given
// instant. Entries without an expiration never expire, and the boundary
// instant itself counts as live.
func (m EntryMeta) Expired(at time.Time) bool {
	return !m.ExpiresAt.IsZero() && at.After(m.ExpiresAt)
}

// Store is the contract every storage adapter implements. Adapters own
// key-to-location mapping, value serialization, and persistence; they must
// be safe for concurrent use.
//
// Absent keys are reported as (zero, false, nil), never as an error.
// Delete and Clear are idempotent.
type Store[V any] interface {
	Set(ctx context.Context, key string, value V, meta EntryMeta) error
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	GetMeta(ctx context.Context, key string) (EntryMeta, bool, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Meta(ctx context.Context) ([]EntryMeta, error)
}
