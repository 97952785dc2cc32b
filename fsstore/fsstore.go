// Package fsstore persists cache entries on the filesystem as a pair of
// files per key: a value file holding the codec payload and a sidecar
// metadata file. Keys are hashed with BLAKE2b-256 into filesystem-safe
// names, so arbitrary key strings work on any platform.
//
// Metadata lives in its own file so existence checks and enumeration never
// read or deserialize value payloads. Writes go through a temp file and a
// rename; a metadata file is only visible once its value file is in place.
package fsstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
)

const (
	valueExt = ".val"
	metaExt  = ".meta"
)

var ErrMissingDir = errors.New("fsstore: directory is required")

// Store implements cachefront.Store on a directory of file pairs.
type Store[V any] struct {
	dir   string
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

// New builds a file-backed store rooted at dir, creating it if needed.
func New[V any](dir string, opts ...Option[V]) (*Store[V], error) {
	if dir == "" {
		return nil, ErrMissingDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create dir: %w", err)
	}
	s := &Store[V]{dir: dir, codec: codec.JSON[V]{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Store[V]) Set(_ context.Context, key string, value V, meta cachefront.EntryMeta) error {
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("fsstore: encode value: %w", err)
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("fsstore: encode meta: %w", err)
	}
	// Value first: a visible meta file implies a readable value file.
	if err := s.writeFile(s.path(key, valueExt), payload); err != nil {
		return err
	}
	return s.writeFile(s.path(key, metaExt), rawMeta)
}

func (s *Store[V]) Get(_ context.Context, key string) (cachefront.Entry[V], bool, error) {
	meta, ok, err := s.readMeta(s.path(key, metaExt))
	if err != nil || !ok {
		return cachefront.Entry[V]{}, false, err
	}
	payload, err := os.ReadFile(s.path(key, valueExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cachefront.Entry[V]{}, false, nil
		}
		return cachefront.Entry[V]{}, false, fmt.Errorf("fsstore: read value: %w", err)
	}
	value, err := s.codec.Unmarshal(payload)
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("fsstore: decode value: %w", err)
	}
	return cachefront.Entry[V]{Key: meta.Key, Value: value, ExpiresAt: meta.ExpiresAt}, true, nil
}

func (s *Store[V]) GetMeta(_ context.Context, key string) (cachefront.EntryMeta, bool, error) {
	return s.readMeta(s.path(key, metaExt))
}

func (s *Store[V]) Delete(_ context.Context, key string) error {
	// Meta first so a torn delete leaves an orphaned value, not a
	// readable entry.
	if err := removeIfPresent(s.path(key, metaExt)); err != nil {
		return err
	}
	return removeIfPresent(s.path(key, valueExt))
}

func (s *Store[V]) Clear(_ context.Context) error {
	for _, ext := range []string{metaExt, valueExt} {
		matches, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
		if err != nil {
			return fmt.Errorf("fsstore: list entries: %w", err)
		}
		for _, path := range matches {
			if err := removeIfPresent(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store[V]) Meta(_ context.Context) ([]cachefront.EntryMeta, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaExt))
	if err != nil {
		return nil, fmt.Errorf("fsstore: list entries: %w", err)
	}
	metas := make([]cachefront.EntryMeta, 0, len(matches))
	for _, path := range matches {
		meta, ok, err := s.readMeta(path)
		if err != nil {
			return nil, err
		}
		if ok {
			metas = append(metas, meta)
		}
	}
	return metas, nil
}

func (s *Store[V]) path(key, ext string) string {
	sum := blake2b.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+ext)
}

func (s *Store[V]) readMeta(path string) (cachefront.EntryMeta, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cachefront.EntryMeta{}, false, nil
		}
		return cachefront.EntryMeta{}, false, fmt.Errorf("fsstore: read meta: %w", err)
	}
	var meta cachefront.EntryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return cachefront.EntryMeta{}, false, fmt.Errorf("fsstore: decode meta: %w", err)
	}
	return meta, true, nil
}

func (s *Store[V]) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "cachefront-*.tmp")
	if err != nil {
		return fmt.Errorf("fsstore: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsstore: rename: %w", err)
	}
	return nil
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsstore: remove: %w", err)
	}
	return nil
}
