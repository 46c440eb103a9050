package profile

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// DefaultTTL is how long a cached profile stays fresh.
const DefaultTTL = 4 * time.Hour

// Cache wraps a Profiler with a SQLite-backed result cache. Profiling a
// multi-terabyte tree is expensive; repeated runs within the TTL reuse the
// previous measurement. ReadDir is never cached — child listings must
// reflect the live tree.
type Cache struct {
	inner Profiler
	db    *sql.DB
	path  string
	ttl   time.Duration

	now func() time.Time // test hook
}

// OpenCache opens (or creates) the profile cache for the given root. The DB
// is stored at $XDG_CACHE_HOME/shard/<root-id>.db or /tmp/shard-<root-id>.db.
func OpenCache(inner Profiler, root string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	dbPath := cachePath(cacheID(root))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open profile cache: %w", err)
	}

	c := &Cache{
		inner: inner,
		db:    db,
		path:  dbPath,
		ttl:   ttl,
		now:   time.Now,
	}

	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			path    TEXT PRIMARY KEY,
			size    INTEGER NOT NULL,
			files   INTEGER NOT NULL,
			dirs    INTEGER NOT NULL,
			scanned INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Profile returns a cached profile if one exists and is younger than the
// TTL, otherwise delegates to the inner profiler and stores the result.
func (c *Cache) Profile(ctx context.Context, path string) (Profile, error) {
	var size, files, dirs, scanned int64
	err := c.db.QueryRow(
		"SELECT size, files, dirs, scanned FROM profiles WHERE path = ?", path,
	).Scan(&size, &files, &dirs, &scanned)
	if err == nil {
		at := time.Unix(0, scanned)
		if c.now().Sub(at) < c.ttl {
			return Profile{
				Path:           path,
				TotalSizeBytes: size,
				FileCount:      files,
				DirCount:       dirs,
				LastScanned:    at,
			}, nil
		}
	}

	prof, err := c.inner.Profile(ctx, path)
	if err != nil {
		return Profile{}, err
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO profiles (path, size, files, dirs, scanned) VALUES (?, ?, ?, ?, ?)",
		path, prof.TotalSizeBytes, prof.FileCount, prof.DirCount, prof.LastScanned.UnixNano(),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("store profile %s: %w", path, err)
	}

	return prof, nil
}

// ReadDir delegates to the inner profiler.
func (c *Cache) ReadDir(path string) ([]Entry, error) {
	return c.inner.ReadDir(path)
}

// Invalidate drops every cached profile, forcing fresh measurement.
func (c *Cache) Invalidate() error {
	_, err := c.db.Exec("DELETE FROM profiles")
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheID(root string) string {
	h := blake3.New()
	h.Write([]byte(root))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func cachePath(id string) string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "shard", id+".db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "shard", id+".db")
	}
	return filepath.Join(os.TempDir(), "shard-"+id+".db")
}
