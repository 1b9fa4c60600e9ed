package journal

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return openTestStoreAt(t, filepath.Join(dir, "journal.db"), filepath.Join(dir, "journal.lock"))
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	record := NewRecord(NewID(), "swap", "eip155:11155111")
	record.Status = StatusFailed
	record.Stages = []string{"idle", "quoting", "failed"}
	record.ErrorType = "no_route"
	if err := store.Save(record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Action != "swap" || len(got.Stages) != 3 || got.ErrorType != "no_route" {
		t.Fatalf("unexpected record: %+v", got)
	}

	got.Status = StatusSucceeded
	got.TxHash = "0xabc"
	got.Touch()
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	succeeded, err := store.List(string(StatusSucceeded), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].TxHash != "0xabc" {
		t.Fatalf("expected one succeeded record, got %+v", succeeded)
	}
	failed, err := store.List(string(StatusFailed), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected the update to replace the failed row, got %d", len(failed))
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	first := NewRecord(NewID(), "create_pool", "eip155:11155111")
	first.Status = StatusSucceeded
	second := NewRecord(NewID(), "add_liquidity", "eip155:11155111")
	second.Status = StatusSucceeded
	for _, r := range []Record{first, second} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	all, err := store.List("", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("expected newest record first, got %+v", all)
	}
}

func TestStoreGetMissingAction(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing")
	if !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing action, got %v", err)
	}
}

func TestStoreRejectsRecordWithoutID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(Record{Action: "swap"}); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestNewIDIsPrefixedUUID(t *testing.T) {
	a, b := NewID(), NewID()
	if !strings.HasPrefix(a, "act_") || len(a) != len("act_")+36 {
		t.Fatalf("unexpected id format: %s", a)
	}
	if a == b {
		t.Fatal("expected unique ids")
	}
}

func TestStoreConcurrentOpenAndSave(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	lockPath := filepath.Join(dir, "journal.lock")

	const workers = 8
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
			if err := store.Save(NewRecord(NewID(), "swap", "eip155:11155111")); err != nil {
				errCh <- fmt.Errorf("worker %d save: %w", workerID, err)
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	store := openTestStoreAt(t, dbPath, lockPath)
	records, err := store.List("", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != workers {
		t.Fatalf("expected %d records, got %d", workers, len(records))
	}
}

func openTestStoreAt(t *testing.T, dbPath, lockPath string) *Store {
	t.Helper()
	store, err := Open(dbPath, lockPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
