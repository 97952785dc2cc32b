// Package redis implements a cachefront storage adapter speaking the Redis
// RESP protocol directly over TCP, with a small connection pool.
//
// Expiration is enforced by the cache front, not by Redis: entries carry
// their metadata in a sidecar key instead of a PX deadline, so expired but
// not yet evicted entries remain enumerable through Meta, as the store
// contract requires.
//
// Each entry occupies two keys under the configured namespace:
// "<ns>:<key>:v" holds the codec payload and "<ns>:<key>:m" holds the JSON
// metadata. Reads and writes of a pair are batched on one connection.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
)

const clearChunk = 512

// Store implements cachefront.Store on a Redis server.
type Store[V any] struct {
	opts   Options
	codec  codec.Codec[V]
	dialFn dialFunc
	pool   chan *serverConn
}

type Option[V any] func(*Store[V])

// WithCodec overrides the default JSON codec for value payloads.
func WithCodec[V any](c codec.Codec[V]) Option[V] {
	return func(s *Store[V]) {
		if c != nil {
			s.codec = c
		}
	}
}

// NewStore builds a Redis-backed store.
func NewStore[V any](opts Options, storeOpts ...Option[V]) *Store[V] {
	cfg := opts.withDefaults()
	s := &Store[V]{
		opts:   cfg,
		codec:  codec.JSON[V]{},
		dialFn: defaultDial,
		pool:   make(chan *serverConn, cfg.PoolSize),
	}
	for _, opt := range storeOpts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithDial overrides the dialer (useful for tests/mocks).
func (s *Store[V]) WithDial(fn dialFunc) {
	if fn != nil {
		s.dialFn = fn
	}
}

func (s *Store[V]) Set(ctx context.Context, key string, value V, meta cachefront.EntryMeta) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: encode value: %w", err)
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: encode meta: %w", err)
	}

	replies, err := s.batch(ctx,
		[]string{"SET", s.valueKey(key), string(payload)},
		[]string{"SET", s.metaKey(key), string(rawMeta)},
	)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		if msg, ok := reply.(string); !ok || !strings.EqualFold(msg, "OK") {
			return fmt.Errorf("redis: SET failed: %v", reply)
		}
	}
	return nil
}

func (s *Store[V]) Get(ctx context.Context, key string) (cachefront.Entry[V], bool, error) {
	if err := ctxErr(ctx); err != nil {
		return cachefront.Entry[V]{}, false, err
	}
	replies, err := s.batch(ctx,
		[]string{"GET", s.metaKey(key)},
		[]string{"GET", s.valueKey(key)},
	)
	if err != nil {
		return cachefront.Entry[V]{}, false, err
	}
	meta, ok, err := decodeMeta(replies[0])
	if err != nil || !ok {
		return cachefront.Entry[V]{}, false, err
	}
	payload, ok := replies[1].([]byte)
	if !ok {
		// Meta without value means a torn write or racing delete.
		return cachefront.Entry[V]{}, false, nil
	}
	value, err := s.codec.Unmarshal(payload)
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("redis: decode value: %w", err)
	}
	return cachefront.Entry[V]{Key: meta.Key, Value: value, ExpiresAt: meta.ExpiresAt}, true, nil
}

func (s *Store[V]) GetMeta(ctx context.Context, key string) (cachefront.EntryMeta, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return cachefront.EntryMeta{}, false, err
	}
	var meta cachefront.EntryMeta
	var found bool
	err := s.withConn(ctx, func(conn *serverConn) error {
		if err := s.writeCommand(conn, "GET", s.metaKey(key)); err != nil {
			return err
		}
		reply, err := s.readReply(conn)
		if err != nil {
			return err
		}
		meta, found, err = decodeMeta(reply)
		return err
	})
	return meta, found, err
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *serverConn) error {
		if err := s.writeCommand(conn, "DEL", s.valueKey(key), s.metaKey(key)); err != nil {
			return err
		}
		reply, err := s.readReply(conn)
		if err != nil {
			return err
		}
		// Zero deleted keys is fine: Delete is idempotent.
		if _, ok := reply.(int64); !ok {
			return fmt.Errorf("redis: DEL failed: %v", reply)
		}
		return nil
	})
}

func (s *Store[V]) Clear(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	keys, err := s.keys(ctx, s.opts.Namespace+":*")
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += clearChunk {
		end := min(start+clearChunk, len(keys))
		cmd := append([]string{"DEL"}, keys[start:end]...)
		err := s.withConn(ctx, func(conn *serverConn) error {
			if err := s.writeCommand(conn, cmd...); err != nil {
				return err
			}
			_, err := s.readReply(conn)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[V]) Meta(ctx context.Context) ([]cachefront.EntryMeta, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	metaKeys, err := s.keys(ctx, s.opts.Namespace+":*:m")
	if err != nil {
		return nil, err
	}
	if len(metaKeys) == 0 {
		return []cachefront.EntryMeta{}, nil
	}

	cmds := make([][]string, len(metaKeys))
	for i, k := range metaKeys {
		cmds[i] = []string{"GET", k}
	}
	replies, err := s.batch(ctx, cmds...)
	if err != nil {
		return nil, err
	}

	metas := make([]cachefront.EntryMeta, 0, len(replies))
	for _, reply := range replies {
		meta, ok, err := decodeMeta(reply)
		if err != nil {
			return nil, err
		}
		// A nil reply means the entry was deleted between KEYS and GET.
		if ok {
			metas = append(metas, meta)
		}
	}
	return metas, nil
}

// batch sends the commands on one connection and reads the replies in
// order, saving a round-trip per command.
func (s *Store[V]) batch(ctx context.Context, cmds ...[]string) ([]any, error) {
	var replies []any
	err := s.withConn(ctx, func(conn *serverConn) error {
		for _, cmd := range cmds {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			if err := s.writeCommand(conn, cmd...); err != nil {
				return err
			}
		}
		replies = make([]any, 0, len(cmds))
		for range cmds {
			reply, err := s.readReply(conn)
			if err != nil {
				return err
			}
			replies = append(replies, reply)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (s *Store[V]) keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.withConn(ctx, func(conn *serverConn) error {
		if err := s.writeCommand(conn, "KEYS", pattern); err != nil {
			return err
		}
		reply, err := s.readReply(conn)
		if err != nil {
			return err
		}
		arr, ok := reply.([]any)
		if !ok {
			return fmt.Errorf("redis: unexpected KEYS reply %T", reply)
		}
		keys = make([]string, 0, len(arr))
		for _, item := range arr {
			raw, ok := item.([]byte)
			if !ok {
				return fmt.Errorf("redis: unexpected KEYS item %T", item)
			}
			keys = append(keys, string(raw))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store[V]) valueKey(key string) string {
	return s.opts.Namespace + ":" + key + ":v"
}

func (s *Store[V]) metaKey(key string) string {
	return s.opts.Namespace + ":" + key + ":m"
}

func decodeMeta(reply any) (cachefront.EntryMeta, bool, error) {
	raw, ok := reply.([]byte)
	if !ok {
		return cachefront.EntryMeta{}, false, nil
	}
	var meta cachefront.EntryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return cachefront.EntryMeta{}, false, fmt.Errorf("redis: decode meta: %w", err)
	}
	return meta, true, nil
}
