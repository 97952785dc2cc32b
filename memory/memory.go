// Package memory provides a volatile in-process storage adapter backed by a
// plain map. Values are held directly without serialization, so callers
// share them with the store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/okiliz/cachefront"
)

// Store implements cachefront.Store in process memory.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]cachefront.Entry[V]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options controls optional background maintenance.
type Options struct {
	// CleanupInterval enables a periodic sweep that removes expired
	// entries. Zero disables the sweep; lazy eviction through the cache
	// front still works without it.
	CleanupInterval time.Duration
}

type Option func(*Options)

// WithCleanupInterval enables the background sweep at the given period.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.CleanupInterval = d
		}
	}
}

// New builds an empty in-memory store. When a cleanup interval is
// configured the store owns a sweep goroutine; call Close to stop it.
func New[V any](opts ...Option) *Store[V] {
	var cfg Options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Store[V]{entries: make(map[string]cachefront.Entry[V])}
	if cfg.CleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.sweepLoop(ctx, cfg.CleanupInterval)
	}
	return s
}

// Close stops the background sweep, if one was configured. It is safe to
// call on a store without one.
func (s *Store[V]) Close() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

func (s *Store[V]) Set(_ context.Context, key string, value V, meta cachefront.EntryMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cachefront.Entry[V]{Key: key, Value: value, ExpiresAt: meta.ExpiresAt}
	return nil
}

func (s *Store[V]) Get(_ context.Context, key string) (cachefront.Entry[V], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *Store[V]) GetMeta(_ context.Context, key string) (cachefront.EntryMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return cachefront.EntryMeta{}, false, nil
	}
	return entry.Meta(), true, nil
}

func (s *Store[V]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store[V]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cachefront.Entry[V])
	return nil
}

func (s *Store[V]) Meta(_ context.Context) ([]cachefront.EntryMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]cachefront.EntryMeta, 0, len(s.entries))
	for _, entry := range s.entries {
		metas = append(metas, entry.Meta())
	}
	return metas, nil
}

func (s *Store[V]) sweepLoop(ctx context.Context, every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Store[V]) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.Meta().Expired(now) {
			delete(s.entries, key)
		}
	}
}
