package redis

import (
	"context"
	"os"
	"testing"
	"time"
)

// newTestCache connects to SCRIBE_TEST_REDIS_ADDR or skips.
func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	addr := os.Getenv("SCRIBE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCRIBE_TEST_REDIS_ADDR not set")
	}
	rdb, err := NewClient(context.Background(), Config{Addr: addr})
	if err != nil {
		t.Fatal(err)
	}
	c := New(rdb, "scribe-test", t.Name(), ttl)
	t.Cleanup(func() {
		_, _ = c.Clear(context.Background(), false)
		_ = c.Close()
	})
	return c
}

func TestKey(t *testing.T) {
	if got := Key("scribe", "websearch", "abc"); got != "scribe:websearch:abc" {
		t.Errorf("expected scribe:websearch:abc, got %s", got)
	}
}

func TestNewDefaultsPrefix(t *testing.T) {
	c := New(nil, "", "websearch", 0)
	if c.prefix != "scribe:websearch:" {
		t.Errorf("expected default prefix, got %s", c.prefix)
	}
}

func TestPutGetStatsClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, time.Minute)

	if err := c.Put(ctx, "k1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get(ctx, "k1")
	if !ok || string(got) != "v1" {
		t.Fatalf("expected hit v1, got %q %v", got, ok)
	}
	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	n, err := c.Clear(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 key removed, got %d", n)
	}
}
