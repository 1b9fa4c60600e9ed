package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

func TestCacheSetGetFreshAndStale(t *testing.T) {
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	defer store.Close()

	if err := store.Set("k1", []byte(`{"v":1}`), 1*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err := store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	time.Sleep(1200 * time.Millisecond)
	res, err = store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale {
		t.Fatalf("expected stale within budget, got %+v", res)
	}
}

func TestCacheTooStale(t *testing.T) {
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	defer store.Close()

	if err := store.Set("k2", []byte(`{"v":2}`), 1*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(1300 * time.Millisecond)
	res, err := store.Get("k2", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.TooStale {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 16
	const iterations = 40

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key, time.Minute)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type listing struct {
	Symbols []string `json:"symbols"`
}

func TestFetchWritesThenHits(t *testing.T) {
	store := openStore(t)
	policy := Policy{Enabled: true, MaxStale: time.Minute}
	calls := 0
	fetch := func(context.Context) (listing, error) {
		calls++
		return listing{Symbols: []string{"WETH", "USDC"}}, nil
	}

	key := Key("explore tokens", map[string]int{"limit": 2})
	v, status, err := Fetch(context.Background(), store, policy, key, time.Minute, fetch)
	if err != nil || status.Status != "write" || len(v.Symbols) != 2 {
		t.Fatalf("unexpected first fetch: %+v %+v %v", v, status, err)
	}
	v, status, err = Fetch(context.Background(), store, policy, key, time.Minute, fetch)
	if err != nil || status.Status != "hit" || v.Symbols[1] != "USDC" {
		t.Fatalf("unexpected second fetch: %+v %+v %v", v, status, err)
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
}

func TestFetchServesStaleOnUnavailable(t *testing.T) {
	store := openStore(t)
	key := Key("explore pools", nil)
	if err := store.Set(key, []byte(`{"symbols":["OLD"]}`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(1200 * time.Millisecond)

	down := func(context.Context) (listing, error) {
		return listing{}, clierr.New(clierr.CodeUnavailable, "indexer unavailable")
	}
	v, status, err := Fetch(context.Background(), store, Policy{Enabled: true, MaxStale: time.Minute}, key, time.Second, down)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !status.Stale || status.Warning == "" || v.Symbols[0] != "OLD" {
		t.Fatalf("unexpected stale result: %+v %+v", v, status)
	}

	_, _, err = Fetch(context.Background(), store, Policy{Enabled: true, MaxStale: time.Minute, NoStale: true}, key, time.Second, down)
	if !clierr.IsCode(err, clierr.CodeStale) {
		t.Fatalf("expected stale error with NoStale, got %v", err)
	}

	usage := func(context.Context) (listing, error) {
		return listing{}, clierr.New(clierr.CodeUsage, "bad request")
	}
	_, _, err = Fetch(context.Background(), store, Policy{Enabled: true, MaxStale: time.Minute}, key, time.Second, usage)
	if !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("usage errors must not fall back, got %v", err)
	}
}

func TestFetchBypassWhenDisabled(t *testing.T) {
	_, status, err := Fetch(context.Background(), nil, Policy{}, "k", time.Minute, func(context.Context) (listing, error) {
		return listing{}, nil
	})
	if err != nil || status.Status != "bypass" {
		t.Fatalf("expected bypass, got %+v %v", status, err)
	}
}
