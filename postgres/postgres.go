// Package postgres implements a cachefront storage adapter backed by a
// PostgreSQL table. One row per entry: the key as primary key, the codec
// payload as bytea, and a nullable expiration timestamp so metadata queries
// never touch the payload column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
)

const defaultTable = "cache_entries"

// Store implements cachefront.Store on a PostgreSQL table.
type Store[V any] struct {
	db    *sql.DB
	table string
	codec codec.Codec[V]
}

type Option[V any] func(*Store[V])

// WithTable overrides the backing table name.
func WithTable[V any](name string) Option[V] {
	return func(s *Store[V]) {
		if name != "" {
			s.table = name
		}
	}
}

// WithCodec overrides the default JSON codec for value payloads.
func WithCodec[V any](c codec.Codec[V]) Option[V] {
	return func(s *Store[V]) {
		if c != nil {
			s.codec = c
		}
	}
}

// New builds a store on an existing database handle. Call EnsureSchema
// once, or create the table from Schema yourself.
func New[V any](db *sql.DB, opts ...Option[V]) *Store[V] {
	s := &Store[V]{db: db, table: defaultTable, codec: codec.JSON[V]{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schema returns the DDL for the backing table.
func Schema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
)`, pq.QuoteIdentifier(table))
}

// EnsureSchema creates the backing table if it does not exist.
func (s *Store[V]) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema(s.table)); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store[V]) Set(ctx context.Context, key string, value V, meta cachefront.EntryMeta) error {
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: encode value: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		pq.QuoteIdentifier(s.table),
	)
	if _, err := s.db.ExecContext(ctx, query, key, payload, nullableTime(meta.ExpiresAt)); err != nil {
		return fmt.Errorf("postgres: set: %w", err)
	}
	return nil
}

func (s *Store[V]) Get(ctx context.Context, key string) (cachefront.Entry[V], bool, error) {
	query := fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = $1`, pq.QuoteIdentifier(s.table))
	var payload []byte
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cachefront.Entry[V]{}, false, nil
	}
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("postgres: get: %w", err)
	}
	value, err := s.codec.Unmarshal(payload)
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("postgres: decode value: %w", err)
	}
	entry := cachefront.Entry[V]{Key: key, Value: value}
	if expiresAt.Valid {
		entry.ExpiresAt = expiresAt.Time
	}
	return entry, true, nil
}

func (s *Store[V]) GetMeta(ctx context.Context, key string) (cachefront.EntryMeta, bool, error) {
	query := fmt.Sprintf(`SELECT expires_at FROM %s WHERE key = $1`, pq.QuoteIdentifier(s.table))
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cachefront.EntryMeta{}, false, nil
	}
	if err != nil {
		return cachefront.EntryMeta{}, false, fmt.Errorf("postgres: get meta: %w", err)
	}
	meta := cachefront.EntryMeta{Key: key}
	if expiresAt.Valid {
		meta.ExpiresAt = expiresAt.Time
	}
	return meta, true, nil
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

func (s *Store[V]) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

func (s *Store[V]) Meta(ctx context.Context) ([]cachefront.EntryMeta, error) {
	query := fmt.Sprintf(`SELECT key, expires_at FROM %s`, pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: meta: %w", err)
	}
	defer rows.Close()

	var metas []cachefront.EntryMeta
	for rows.Next() {
		var meta cachefront.EntryMeta
		var expiresAt sql.NullTime
		if err := rows.Scan(&meta.Key, &expiresAt); err != nil {
			return nil, fmt.Errorf("postgres: meta: %w", err)
		}
		if expiresAt.Valid {
			meta.ExpiresAt = expiresAt.Time
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: meta: %w", err)
	}
	return metas, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
