package lsm

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/mnohosten/ringkv/internal/record"
)

func openTestEngine(t *testing.T, maxBytes int64) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Config{Dir: dir, MaxMemtableBytes: maxBytes})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestUpsertAndGet(t *testing.T) {
	e := openTestEngine(t, DefaultMaxMemtableBytes)
	defer e.Close()

	key := []byte("k1")
	if err := e.Upsert(record.New(key, []byte("v1"), 1)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, found, err := e.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if !bytes.Equal(rec.Value, []byte("v1")) {
		t.Fatalf("got value %q, want v1", rec.Value)
	}
}

func TestUpsertTriggersFlushAtThreshold(t *testing.T) {
	e := openTestEngine(t, 16) // tiny threshold forces a flush quickly
	defer e.Close()

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		if err := e.Upsert(record.New(key, []byte("value"), int64(i))); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	stats := e.Stats()
	if stats.SSTableCount == 0 {
		t.Fatal("expected at least one SSTable to have been flushed")
	}

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		rec, found, err := e.Get(key)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !found {
			t.Fatalf("key %d not found after flush", i)
		}
		if !bytes.Equal(rec.Value, []byte("value")) {
			t.Fatalf("key %d: unexpected value %q", i, rec.Value)
		}
	}
}

func TestRangeOrderingAndNewestWins(t *testing.T) {
	e := openTestEngine(t, 16)
	defer e.Close()

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("r-%02d", i))
		e.Upsert(record.New(key, []byte("v1"), 1))
	}
	// Overwrite a subset after the initial batch likely flushed.
	e.Upsert(record.New([]byte("r-05"), []byte("v2"), 2))

	result, err := e.Range(nil, nil)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	defer result.Close()

	var lastKey []byte
	count := 0
	for result.Next() {
		rec := result.Record()
		if lastKey != nil && bytes.Compare(lastKey, rec.Key) >= 0 {
			t.Fatalf("range not strictly ascending at %q after %q", rec.Key, lastKey)
		}
		lastKey = rec.Key
		if string(rec.Key) == "r-05" && !bytes.Equal(rec.Value, []byte("v2")) {
			t.Fatalf("expected newest value for r-05, got %q", rec.Value)
		}
		count++
	}
	if count != 10 {
		t.Fatalf("expected 10 distinct keys, got %d", count)
	}
}

func TestDeleteThenGetReflectsTombstone(t *testing.T) {
	e := openTestEngine(t, DefaultMaxMemtableBytes)
	defer e.Close()

	key := []byte("gone")
	e.Upsert(record.New(key, []byte("v"), 1))
	e.Upsert(record.NewTombstone(key, 2))

	rec, found, err := e.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected tombstone record to be found")
	}
	if !rec.Tombstone {
		t.Fatalf("expected tombstone, got %+v", rec)
	}
}

func TestCompactPreservesNewestValuesAndTombstones(t *testing.T) {
	e := openTestEngine(t, 16)
	defer e.Close()

	for i := 0; i < 30; i++ {
		key := []byte(fmt.Sprintf("c-%02d", i))
		e.Upsert(record.New(key, []byte("v1"), int64(i)))
	}
	e.Upsert(record.NewTombstone([]byte("c-05"), 1000))

	if err := e.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if got := e.Stats().SSTableCount; got > 1 {
		t.Fatalf("expected at most one SSTable after compaction, got %d", got)
	}

	rec, found, err := e.Get([]byte("c-05"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || !rec.Tombstone {
		t.Fatalf("expected tombstone to survive compaction, got found=%v rec=%+v", found, rec)
	}

	rec, found, err = e.Get([]byte("c-10"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || !bytes.Equal(rec.Value, []byte("v1")) {
		t.Fatalf("expected c-10 to survive compaction with value v1, got found=%v rec=%+v", found, rec)
	}
}

func TestReopenRecoversSSTables(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Config{Dir: dir, MaxMemtableBytes: 16})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("p-%02d", i))
		e.Upsert(record.New(key, []byte("value"), int64(i)))
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Dir: dir, MaxMemtableBytes: 16})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("p-%02d", i))
		_, found, err := reopened.Get(key)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !found {
			t.Fatalf("key %d missing after reopen", i)
		}
	}
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e := openTestEngine(t, DefaultMaxMemtableBytes)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Upsert(record.New([]byte("k"), []byte("v"), 1)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
