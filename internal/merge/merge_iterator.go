// Package merge implements the k-way merge at the heart of the LSM
// engine's range scans: it turns a list of heterogeneous ordered
// record sources (mapped-file cursors, in-memory skip-list cursors)
// into one strictly-ascending, duplicate-free stream.
package merge

import (
	"bytes"
	"container/heap"

	"github.com/mnohosten/ringkv/internal/record"
)

// Source is the minimal capability set a merge input must offer: peek
// the current record and advance past it (spec.md §9's "capability
// set {peek, advance}"). *sstable.Iterator and *memtable.Cursor both
// satisfy this without any adapter type.
type Source interface {
	Next() bool
	Record() record.Record
}

// Iterator is a k-way merge over a fixed list of Sources, provided
// oldest-first. When two or more sources offer a record with an equal
// key, the record from the source with the highest index in the
// original list wins; the others are advanced past that key and
// discarded. Callers pass sources in the order
// [oldest_sstable, ..., newest_sstable, memtable] so the memtable
// (always last) wins ties, matching the engine's newest-shadows-oldest
// rule. Tombstones are emitted, not filtered — filtering is the
// caller's decision (spec.md §4.2).
type Iterator struct {
	sources []Source
	items   itemHeap
	cur     record.Record
}

type heapItem struct {
	key []byte
	idx int
}

type itemHeap []heapItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	// Equal keys: higher source index (newer input) sorts first so it
	// pops ahead of older inputs carrying the same key.
	return h[i].idx > h[j].idx
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// New builds a merging iterator over sources, oldest-first. Each
// source is primed with one Next() call before New returns.
func New(sources []Source) *Iterator {
	it := &Iterator{sources: sources}
	for i, s := range sources {
		if s.Next() {
			heap.Push(&it.items, heapItem{key: s.Record().Key, idx: i})
		}
	}
	return it
}

// Next advances to the next distinct key in ascending order, O(log K)
// amortized per yielded record (plus one extra pop per shadowed
// duplicate at that key). Reports whether a record is available.
func (it *Iterator) Next() bool {
	if it.items.Len() == 0 {
		return false
	}

	top := heap.Pop(&it.items).(heapItem)
	it.cur = it.sources[top.idx].Record()
	it.advance(top.idx)

	for it.items.Len() > 0 && bytes.Equal(it.items[0].key, it.cur.Key) {
		dup := heap.Pop(&it.items).(heapItem)
		it.advance(dup.idx)
	}

	return true
}

func (it *Iterator) advance(idx int) {
	if it.sources[idx].Next() {
		heap.Push(&it.items, heapItem{key: it.sources[idx].Record().Key, idx: idx})
	}
}

// Record returns the entry at the iterator's current position.
func (it *Iterator) Record() record.Record {
	return it.cur
}
