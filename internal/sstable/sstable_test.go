package sstable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mnohosten/ringkv/internal/record"
)

func writeTable(t *testing.T, dir string, recs []record.Record) *Reader {
	t.Helper()
	path := PathForGeneration(dir, 0)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	reader, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return reader
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	recs := []record.Record{
		record.New([]byte("a"), []byte("1"), 10),
		record.New([]byte("b"), []byte("22"), 20),
		record.NewTombstone([]byte("c"), 30),
		record.New([]byte("d"), nil, 40),
	}
	reader := writeTable(t, dir, recs)
	defer reader.Close()

	if reader.Len() != len(recs) {
		t.Fatalf("Len: got %d want %d", reader.Len(), len(recs))
	}

	it := reader.Range(nil, nil)
	var got []record.Record
	for it.Next() {
		got = append(got, it.Record())
	}
	if len(got) != len(recs) {
		t.Fatalf("range yielded %d records, want %d", len(got), len(recs))
	}
	for i, r := range recs {
		if !bytes.Equal(got[i].Key, r.Key) {
			t.Fatalf("record %d key: got %q want %q", i, got[i].Key, r.Key)
		}
		if !bytes.Equal(got[i].Value, r.Value) {
			t.Fatalf("record %d value: got %q want %q", i, got[i].Value, r.Value)
		}
		if got[i].Timestamp != r.Timestamp {
			t.Fatalf("record %d timestamp: got %d want %d", i, got[i].Timestamp, r.Timestamp)
		}
		if got[i].Tombstone != r.Tombstone {
			t.Fatalf("record %d tombstone: got %v want %v", i, got[i].Tombstone, r.Tombstone)
		}
	}
}

func TestRangeBounds(t *testing.T) {
	dir := t.TempDir()
	var recs []record.Record
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		recs = append(recs, record.New(key, []byte("v"), int64(i)))
	}
	reader := writeTable(t, dir, recs)
	defer reader.Close()

	it := reader.Range([]byte("k03"), []byte("k06"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Record().Key))
	}
	want := []string{"k03", "k04", "k05"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	dir := t.TempDir()
	path := PathForGeneration(dir, 0)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write(record.New([]byte("b"), []byte("1"), 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(record.New([]byte("a"), []byte("2"), 2)); err == nil {
		t.Fatal("expected error for out-of-order key")
	}
	w.Abort()
}

func TestFinalizeEmptyProducesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := PathForGeneration(dir, 0)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	reader, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if reader != nil {
		t.Fatal("expected nil reader for an empty table")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file at %s", path)
	}
}

func TestGenerationNaming(t *testing.T) {
	dir := t.TempDir()
	p0 := PathForGeneration(dir, 0)
	p1 := PathForGeneration(dir, 1)
	if filepath.Base(p0) >= filepath.Base(p1) {
		t.Fatalf("expected generation 0 name to sort before generation 1: %q vs %q", p0, p1)
	}
}
