package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_NewFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestRedisStore_NewBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisStore_WritesHash(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	if err := store.SetFields(ctx, "paste:x", map[string]string{"content": "hi", "maxViews": "-1"}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}
	if got := mr.HGet("paste:x", "maxViews"); got != "-1" {
		t.Errorf("expected sentinel -1 on the wire, got %q", got)
	}
	if got := mr.HGet("paste:x", "content"); got != "hi" {
		t.Errorf("expected content hi, got %q", got)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	if err := store.SetFields(ctx, "k", map[string]string{"views": "0"}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}
	if err := store.SetExpiry(ctx, "k", 60*time.Second); err != nil {
		t.Fatalf("SetExpiry failed: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 60*time.Second {
		t.Errorf("expected TTL 60s, got %v", ttl)
	}

	mr.FastForward(61 * time.Second)
	if _, err := store.GetFields(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	if _, err := store.IncrementField(ctx, "k", "views", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound incrementing an expired key, got %v", err)
	}
	if mr.Exists("k") {
		t.Fatal("increment recreated an expired key")
	}
}

func TestRedisStore_SubSecondExpiry(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	_ = store.SetFields(ctx, "k", map[string]string{"a": "1"})
	if err := store.SetExpiry(ctx, "k", 1500*time.Millisecond); err != nil {
		t.Fatalf("SetExpiry failed: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 1500*time.Millisecond {
		t.Errorf("expected TTL 1.5s, got %v", ttl)
	}
}

func TestRedisStore_PingDown(t *testing.T) {
	store, mr := newMiniredisStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected Ping to fail when the server is down")
	}
}

func TestRedisStore_ServerError(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()
	mr.SetError("LOADING Redis is loading the dataset in memory")

	if _, err := store.GetFields(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected server error, got %v", err)
	}
}
