package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestBoltStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vpaste.db")
	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestBoltStore_Persists(t *testing.T) {
	store, path := newTestBoltStore(t)
	ctx := context.Background()

	if err := store.SetFields(ctx, "k", map[string]string{"content": "kept", "views": "2"}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	fields, err := reopened.GetFields(ctx, "k")
	if err != nil {
		t.Fatalf("GetFields after reopen failed: %v", err)
	}
	if fields["content"] != "kept" || fields["views"] != "2" {
		t.Fatalf("unexpected fields after reopen: %v", fields)
	}
}

func TestBoltStore_ExpiryAndSweep(t *testing.T) {
	store, _ := newTestBoltStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"short", "long", "forever"} {
		if err := store.SetFields(ctx, key, map[string]string{"a": "1"}); err != nil {
			t.Fatalf("SetFields failed: %v", err)
		}
	}
	_ = store.SetExpiry(ctx, "short", 10*time.Second)
	_ = store.SetExpiry(ctx, "long", time.Hour)

	now = now.Add(10 * time.Second)
	if _, err := store.GetFields(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired key should read as missing, got %v", err)
	}

	removed, err := store.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 key swept, got %d", removed)
	}

	for key, want := range map[string]bool{"short": false, "long": true, "forever": true} {
		if ok, _ := store.Exists(ctx, key); ok != want {
			t.Errorf("%s: expected exists=%v", key, want)
		}
	}

	removed, err = store.Sweep(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected the long key to be swept, got %d", removed)
	}
}

func TestBoltStore_RewriteAfterExpiryStartsFresh(t *testing.T) {
	store, _ := newTestBoltStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.SetFields(ctx, "k", map[string]string{"old": "1"})
	_ = store.SetExpiry(ctx, "k", time.Second)
	now = now.Add(2 * time.Second)

	if err := store.SetFields(ctx, "k", map[string]string{"new": "1"}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}
	fields, err := store.GetFields(ctx, "k")
	if err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if _, ok := fields["old"]; ok {
		t.Fatalf("expired fields leaked into the new record: %v", fields)
	}

	// The stale index entry must not sweep the fresh record.
	removed, err := store.Sweep(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing to sweep, got %d", removed)
	}
	if ok, _ := store.Exists(ctx, "k"); !ok {
		t.Fatal("fresh record was swept")
	}
}

func TestBoltStore_DeleteDropsIndex(t *testing.T) {
	store, _ := newTestBoltStore(t)
	ctx := context.Background()

	_ = store.SetFields(ctx, "k", map[string]string{"a": "1"})
	_ = store.SetExpiry(ctx, "k", time.Second)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	removed, err := store.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected empty index after delete, swept %d", removed)
	}
}

func TestBoltStore_PingClosed(t *testing.T) {
	store, _ := newTestBoltStore(t)
	_ = store.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail on a closed database")
	}
}
