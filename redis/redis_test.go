package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okiliz/cachefront"
	testredis "github.com/okiliz/cachefront/internal/testutil/rediscontainer"
)

func TestMain(m *testing.M) {
	if err := testredis.Setup(); err != nil {
		fmt.Println("redis store tests skipped:", err)
		os.Exit(0)
	}

	code := m.Run()

	if err := testredis.Teardown(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: failed to stop redis test container:", err)
	}

	os.Exit(code)
}

func testStore(t *testing.T) *Store[string] {
	t.Helper()
	return NewStore[string](Options{
		Addr:      testredis.Addr(),
		Namespace: fmt.Sprintf("cf:%s:%d", t.Name(), time.Now().UnixNano()),
	})
}

func TestStoreSetGetDelete(t *testing.T) {
	store := testStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	meta := cachefront.EntryMeta{Key: "k", ExpiresAt: expiry}
	if err := store.Set(ctx, "k", "some-payload", meta); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entry, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || entry.Value != "some-payload" {
		t.Fatalf("Get() = %+v, %v, want stored value", entry, ok)
	}
	if !entry.ExpiresAt.Equal(expiry) {
		t.Fatalf("ExpiresAt = %v, want %v", entry.ExpiresAt, expiry)
	}

	got, ok, err := store.GetMeta(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("GetMeta() = %v, %v, want hit", ok, err)
	}
	if !got.ExpiresAt.Equal(expiry) {
		t.Fatalf("GetMeta() ExpiresAt = %v, want %v", got.ExpiresAt, expiry)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("Get() after Delete() returned an entry")
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("repeated Delete() error = %v", err)
	}
}

func TestExpiredEntriesRemainEnumerable(t *testing.T) {
	store := testStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Logical expiry in the past; Redis keeps the keys because the store
	// sets no PX deadline.
	past := cachefront.EntryMeta{Key: "dead", ExpiresAt: time.Now().Add(-time.Hour)}
	if err := store.Set(ctx, "dead", "v", past); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	metas, err := store.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if len(metas) != 1 || metas[0].Key != "dead" {
		t.Fatalf("Meta() = %+v, want the expired entry", metas)
	}

	// The cache front sees the expiry and evicts lazily.
	c := cachefront.New[string](store)
	if _, ok, err := c.Get(ctx, "dead"); err != nil || ok {
		t.Fatalf("Get() = %v, %v, want miss", ok, err)
	}
	metas, err = store.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("Meta() after eviction = %+v, want empty", metas)
	}
}

func TestClearIsNamespaceScoped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	suffix := time.Now().UnixNano()
	first := NewStore[string](Options{Addr: testredis.Addr(), Namespace: fmt.Sprintf("cf:first:%d", suffix)})
	second := NewStore[string](Options{Addr: testredis.Addr(), Namespace: fmt.Sprintf("cf:second:%d", suffix)})

	for _, store := range []*Store[string]{first, second} {
		if err := store.Set(ctx, "k", "v", cachefront.EntryMeta{Key: "k"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := first.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if metas, _ := first.Meta(ctx); len(metas) != 0 {
		t.Fatalf("cleared namespace still holds %d entries", len(metas))
	}
	if metas, _ := second.Meta(ctx); len(metas) != 1 {
		t.Fatalf("sibling namespace lost entries: %d, want 1", len(metas))
	}
}

func TestStoreConcurrentSetGet(t *testing.T) {
	store := testStore(t)

	const workers = 8
	const opsPerWorker = 25

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("concurrent:%d:%d", worker, i)

				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				err := store.Set(ctx, key, key, cachefront.EntryMeta{Key: key})
				if err != nil {
					cancel()
					errCh <- fmt.Errorf("worker %d set failed: %w", worker, err)
					return
				}
				entry, ok, err := store.Get(ctx, key)
				cancel()
				if err != nil || !ok {
					errCh <- fmt.Errorf("worker %d get failed: ok=%v err=%v", worker, ok, err)
					return
				}
				if entry.Value != key {
					errCh <- fmt.Errorf("worker %d mismatch: got %q want %q", worker, entry.Value, key)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent op failed: %v", err)
	}
}
