package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, scope string, ttl time.Duration) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, scope, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHashKey(t *testing.T) {
	h1 := HashKey("1.2", "capital ratios")
	h2 := HashKey("1.2", "capital ratios")
	h3 := HashKey("1.2", "liquidity")
	h4 := HashKey("1.2capital", " ratios")

	if h1 != h2 {
		t.Error("same input should produce same hash")
	}
	if h1 == h3 {
		t.Error("different query should produce different hash")
	}
	if h1 == h4 {
		t.Error("part boundaries should affect the hash")
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, "websearch", time.Hour)

	if err := c.Put(ctx, "k1", []byte(`[{"query":"q"}]`)); err != nil {
		t.Fatal(err)
	}

	data, ok := c.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `[{"query":"q"}]` {
		t.Errorf("unexpected value: %s", data)
	}

	if _, ok := c.Get(ctx, "k2"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	a, err := New(dbPath, "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(dbPath, "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = a.Put(ctx, "k", []byte("a"))
	if _, ok := b.Get(ctx, "k"); ok {
		t.Error("expected miss in another scope")
	}
}

func TestTTLExpiration(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, "websearch", time.Second)

	if err := c.Put(ctx, "k", []byte("data")); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(2100 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, "websearch", 0)
	_ = c.Put(ctx, "k", []byte("data"))

	n, err := c.Clear(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected no expired entries, got %d", n)
	}
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("expected hit with zero TTL")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, "websearch", time.Hour)

	_ = c.Put(ctx, "h1", []byte("data"))
	c.Get(ctx, "h1") // hit
	c.Get(ctx, "h2") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Backend != Backend {
		t.Errorf("expected backend %s, got %s", Backend, stats.Backend)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, "websearch", time.Hour)

	_ = c.Put(ctx, "h1", []byte("data"))
	_ = c.Put(ctx, "h2", []byte("data"))

	n, err := c.Clear(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}

	stats, _ := c.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}
