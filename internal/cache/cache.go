// Package cache keeps indexer listings and token metadata in a local sqlite
// file so repeated explore commands stay fast and survive short indexer
// outages.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const lockRetryDelay = 25 * time.Millisecond

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lock cache schema: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: lock}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes entries whose TTL has fully expired.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE created_at + ttl_seconds < ?", time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Get reads key. A negative maxStale never marks an entry TooStale.
func (s *Store) Get(key string, maxStale time.Duration) (Result, error) {
	var value []byte
	var createdUnix, ttlSeconds int64
	err := s.db.QueryRow("SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key).Scan(&value, &createdUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := time.Since(time.Unix(createdUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(context.Background(), lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, time.Now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Key derives a stable entry key from a namespace and any JSON-encodable
// request description.
func Key(namespace string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(namespace+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

// Policy controls how Fetch uses the store.
type Policy struct {
	Enabled  bool
	MaxStale time.Duration
	NoStale  bool
}

// Status reports where a Fetch result came from: hit, write, miss, stale or
// bypass.
type Status struct {
	Status  string
	Age     time.Duration
	Stale   bool
	Warning string
}

// Fetch serves key from the store while fresh, otherwise calls fetch and
// writes the result back. When fetch fails with an unavailable or timeout
// error, a stale entry inside the MaxStale window is served instead.
func Fetch[T any](ctx context.Context, s *Store, p Policy, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, Status, error) {
	var zero T
	if s == nil || !p.Enabled {
		v, err := fetch(ctx)
		return v, Status{Status: "bypass"}, err
	}

	var stale *T
	var staleAge time.Duration
	if cached, err := s.Get(key, p.MaxStale); err == nil && cached.Hit {
		var v T
		if err := json.Unmarshal(cached.Value, &v); err == nil {
			if !cached.Stale {
				return v, Status{Status: "hit", Age: cached.Age}, nil
			}
			if !cached.TooStale {
				stale, staleAge = &v, cached.Age
			}
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		if stale == nil || !fallbackAllowed(err) {
			return zero, Status{Status: "miss"}, err
		}
		if p.NoStale {
			return zero, Status{Status: "miss"}, clierr.Wrap(clierr.CodeStale, "fresh indexer fetch failed and stale fallback is disabled (--no-stale)", err)
		}
		return *stale, Status{
			Status:  "stale",
			Age:     staleAge,
			Stale:   true,
			Warning: "indexer fetch failed; serving stale data within max-stale budget",
		}, nil
	}

	if payload, err := json.Marshal(v); err == nil && s.Set(key, payload, ttl) == nil {
		return v, Status{Status: "write"}, nil
	}
	return v, Status{Status: "miss"}, nil
}

func fallbackAllowed(err error) bool {
	return clierr.IsCode(err, clierr.CodeUnavailable) || clierr.IsCode(err, clierr.CodeTimeout)
}

// sqliteDSN sets a busy timeout on every pooled connection so concurrent
// processes wait for the WAL writer instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}
