// Package sqlite implements a cachefront storage adapter on SQLite through
// gorm with the pure-Go glebarez driver, suitable for single-process
// durable caches without a database server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	driver "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
)

type entryRow struct {
	Key       string     `gorm:"column:key;primaryKey"`
	Value     []byte     `gorm:"column:value"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

func (entryRow) TableName() string { return "cache_entries" }

// Open opens (or creates) the SQLite database at path and migrates the
// cache schema. Use ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(driver.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return db, nil
}

// Store implements cachefront.Store on a SQLite table.
type Store[V any] struct {
	db    *gorm.DB
	codec codec.Codec[V]
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

// New builds a store on an existing gorm handle, normally one from Open.
func New[V any](db *gorm.DB, opts ...Option[V]) *Store[V] {
	s := &Store[V]{db: db, codec: codec.JSON[V]{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store[V]) Set(ctx context.Context, key string, value V, meta cachefront.EntryMeta) error {
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: encode value: %w", err)
	}
	row := entryRow{Key: key, Value: payload}
	if !meta.ExpiresAt.IsZero() {
		expiresAt := meta.ExpiresAt
		row.ExpiresAt = &expiresAt
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: set: %w", err)
	}
	return nil
}

func (s *Store[V]) Get(ctx context.Context, key string) (cachefront.Entry[V], bool, error) {
	var row entryRow
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cachefront.Entry[V]{}, false, nil
	}
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("sqlite: get: %w", err)
	}
	value, err := s.codec.Unmarshal(row.Value)
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("sqlite: decode value: %w", err)
	}
	return cachefront.Entry[V]{Key: key, Value: value, ExpiresAt: row.meta().ExpiresAt}, true, nil
}

func (s *Store[V]) GetMeta(ctx context.Context, key string) (cachefront.EntryMeta, bool, error) {
	var row entryRow
	err := s.db.WithContext(ctx).Select("key", "expires_at").Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cachefront.EntryMeta{}, false, nil
	}
	if err != nil {
		return cachefront.EntryMeta{}, false, fmt.Errorf("sqlite: get meta: %w", err)
	}
	return row.meta(), true, nil
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&entryRow{}).Error; err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

func (s *Store[V]) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM cache_entries").Error; err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}

func (s *Store[V]) Meta(ctx context.Context) ([]cachefront.EntryMeta, error) {
	var rows []entryRow
	if err := s.db.WithContext(ctx).Select("key", "expires_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: meta: %w", err)
	}
	metas := make([]cachefront.EntryMeta, 0, len(rows))
	for _, row := range rows {
		metas = append(metas, row.meta())
	}
	return metas, nil
}

func (r entryRow) meta() cachefront.EntryMeta {
	meta := cachefront.EntryMeta{Key: r.Key}
	if r.ExpiresAt != nil {
		meta.ExpiresAt = *r.ExpiresAt
	}
	return meta
}
