package fsstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
	"github.com/okiliz/cachefront/fsstore"
)

type article struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := fsstore.New[string](""); !errors.Is(err, fsstore.ErrMissingDir) {
		t.Fatalf("New(\"\") error = %v, want ErrMissingDir", err)
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := fsstore.New[article](t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := article{Title: "caching", Tags: []string{"ttl", "storage"}}
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	meta := cachefront.EntryMeta{Key: "post/1", ExpiresAt: expiry}
	if err := store.Set(ctx, "post/1", in, meta); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entry, ok, err := store.Get(ctx, "post/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || entry.Value.Title != in.Title || len(entry.Value.Tags) != 2 {
		t.Fatalf("Get() = %+v, %v, want stored article", entry, ok)
	}
	if !entry.ExpiresAt.Equal(expiry) {
		t.Fatalf("ExpiresAt = %v, want %v", entry.ExpiresAt, expiry)
	}

	if err := store.Delete(ctx, "post/1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "post/1"); ok {
		t.Fatal("Get() after Delete() returned an entry")
	}
	if err := store.Delete(ctx, "post/1"); err != nil {
		t.Fatalf("repeated Delete() error = %v", err)
	}
}

func TestKeysMapToFilePairs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fsstore.New[string](dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Keys that are hostile to filesystems must still work.
	key := "https://example.com/a?b=c&d=../.."
	if err := store.Set(ctx, key, "v", cachefront.EntryMeta{Key: key}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	names, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("entry occupies %d files, want a value/meta pair", len(names))
	}

	entry, ok, err := store.Get(ctx, key)
	if err != nil || !ok || entry.Value != "v" {
		t.Fatalf("Get() = %+v, %v, %v, want hit", entry, ok, err)
	}
}

func TestGetMetaIgnoresPayload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fsstore.New[string](dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Set(ctx, "k", "v", cachefront.EntryMeta{Key: "k"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Corrupt the value file; metadata reads must not notice.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.val"))
	if len(matches) != 1 {
		t.Fatalf("found %d value files, want 1", len(matches))
	}
	if err := os.WriteFile(matches[0], []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	meta, ok, err := store.GetMeta(ctx, "k")
	if err != nil {
		t.Fatalf("GetMeta() error = %v", err)
	}
	if !ok || meta.Key != "k" {
		t.Fatalf("GetMeta() = %+v, %v, want key %q", meta, ok, "k")
	}

	metas, err := store.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if len(metas) != 1 || metas[0].Key != "k" {
		t.Fatalf("Meta() = %+v, want single entry %q", metas, "k")
	}
}

func TestClearRemovesAllFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fsstore.New[int](dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i, key := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, key, i, cachefront.EntryMeta{Key: key}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	names, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("Clear() left %d files behind", len(names))
	}
}

func TestGobCodecOption(t *testing.T) {
	ctx := context.Background()
	store, err := fsstore.New[map[time.Time]string](
		t.TempDir(),
		fsstore.WithCodec[map[time.Time]string](codec.Gob[map[time.Time]string]{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	when := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	in := map[time.Time]string{when: "deploy"}
	if err := store.Set(ctx, "schedule", in, cachefront.EntryMeta{Key: "schedule"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	entry, ok, err := store.Get(ctx, "schedule")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, want hit", ok, err)
	}
	if entry.Value[when] != "deploy" {
		t.Fatalf("round trip = %v, want %v", entry.Value, in)
	}
}

// The whole façade working against durable files.
func TestCacheFrontOnFiles(t *testing.T) {
	ctx := context.Background()
	store, err := fsstore.New[string](t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := cachefront.New[string](store)

	if err := c.SetWithTTL(ctx, "k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL() error = %v", err)
	}
	if value, ok, _ := c.Get(ctx, "k"); !ok || value != "v" {
		t.Fatalf("Get() = %q, %v, want hit", value, ok)
	}

	time.Sleep(100 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("Get() after TTL elapsed returned a value")
	}
	// Lazy eviction removed the file pair.
	if metas, _ := store.Meta(ctx); len(metas) != 0 {
		t.Fatalf("store still holds %d entries after eviction", len(metas))
	}
}
