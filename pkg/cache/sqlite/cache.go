package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/scribe/pkg/models"
)

// Backend is the name reported in CacheStats.
const Backend = "sqlite"

// Cache is a scoped key/value lookup cache backed by SQLite. A TTL of zero
// keeps entries until they are cleared.
type Cache struct {
	db     *sql.DB
	scope  string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// New opens a Cache for scope at dbPath.
func New(dbPath, scope string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, scope: scope, ttl: ttl}, nil
}

// HashKey computes a SHA-256 hash over the given parts.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns a cached value. Expired and missing entries are misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := c.db.QueryRowContext(ctx,
		`SELECT value, created_at, ttl_seconds FROM cache_entries WHERE scope = ? AND key = ?`,
		c.scope, key,
	).Scan(&value, &createdAt, &ttlSeconds)

	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	if ttlSeconds > 0 && time.Since(createdAt) > time.Duration(ttlSeconds)*time.Second {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return value, true
}

// Put stores value under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (scope, key, value, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		c.scope, key, value, time.Now().UTC(), ttlSeconds(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func ttlSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if s == 0 {
		s = 1
	}
	return s
}

// Stats returns the entry count of the scope and this process's hit/miss counts.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries WHERE scope = ?`, c.scope).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Backend: Backend,
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes entries of the scope. If expiredOnly is true, only expired
// entries are removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	query := `DELETE FROM cache_entries WHERE scope = ?`
	if expiredOnly {
		query += ` AND ttl_seconds > 0 AND (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	}
	res, err := c.db.ExecContext(ctx, query, c.scope)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
