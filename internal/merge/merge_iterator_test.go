package merge

import (
	"testing"

	"github.com/mnohosten/ringkv/internal/record"
)

// sliceSource is a minimal in-memory Source for tests, standing in for
// a memtable cursor or SSTable iterator.
type sliceSource struct {
	recs []record.Record
	idx  int
}

func newSliceSource(recs ...record.Record) *sliceSource {
	return &sliceSource{recs: recs, idx: -1}
}

func (s *sliceSource) Next() bool {
	s.idx++
	return s.idx < len(s.recs)
}

func (s *sliceSource) Record() record.Record {
	return s.recs[s.idx]
}

func TestMergeAscendingNoDuplicates(t *testing.T) {
	oldest := newSliceSource(
		record.New([]byte("a"), []byte("old-a"), 1),
		record.New([]byte("c"), []byte("old-c"), 1),
	)
	newest := newSliceSource(
		record.New([]byte("b"), []byte("new-b"), 2),
		record.New([]byte("c"), []byte("new-c"), 2),
	)

	it := New([]Source{oldest, newest})

	var got []record.Record
	for it.Next() {
		got = append(got, it.Record())
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if string(got[0].Key) != "a" || string(got[0].Value) != "old-a" {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if string(got[1].Key) != "b" {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
	if string(got[2].Key) != "c" || string(got[2].Value) != "new-c" {
		t.Fatalf("expected newest source to win tie on key c: %+v", got[2])
	}
}

func TestMergeTombstonesPassThrough(t *testing.T) {
	oldest := newSliceSource(record.New([]byte("k"), []byte("v"), 1))
	newest := newSliceSource(record.NewTombstone([]byte("k"), 2))

	it := New([]Source{oldest, newest})
	if !it.Next() {
		t.Fatal("expected one record")
	}
	rec := it.Record()
	if !rec.Tombstone {
		t.Fatalf("expected tombstone to win, got %+v", rec)
	}
	if it.Next() {
		t.Fatal("expected exactly one record after dedup")
	}
}

func TestMergeEmptySources(t *testing.T) {
	it := New([]Source{newSliceSource(), newSliceSource()})
	if it.Next() {
		t.Fatal("expected no records from empty sources")
	}
}
