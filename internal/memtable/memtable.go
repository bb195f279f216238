// Package memtable implements the engine's in-memory sorted buffer: a
// map from key to the latest Record for that key, iterable in
// ascending key order. Adapted from the teacher's skip-list backed
// MemTable, generalized to the record.Record value type; the
// accounted-size bookkeeping the LSM engine's flush policy needs lives
// in the skip list's nodes themselves (see skiplist.go) rather than as
// a separate counter layered on top here.
package memtable

import (
	"sync"

	"github.com/mnohosten/ringkv/internal/record"
)

// Memtable is the mutable, in-memory half of the LSM engine. All
// access is expected to happen under the engine's single exclusive
// lock (see internal/lsm); the internal mutex here guards against
// accidental concurrent use from elsewhere (e.g. a stats reader).
type Memtable struct {
	mu   sync.RWMutex
	skip *skipList
}

// New creates an empty memtable.
func New() *Memtable {
	return &Memtable{skip: newSkipList()}
}

// Upsert inserts or overwrites key's record and returns the signed
// delta it applied to the accounted size reported by Bytes.
func (m *Memtable) Upsert(rec record.Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skip.insert(rec.Key, rec)
}

// ProjectedDelta reports the signed accounted-size change an Upsert of
// rec would cause, without applying it — used by the engine to decide
// whether a pending write would cross the flush threshold.
func (m *Memtable) ProjectedDelta(rec record.Record) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skip.previewDelta(rec.Key, rec)
}

// Get returns the record stored for key, if any.
func (m *Memtable) Get(key []byte) (record.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skip.search(key)
}

// Len returns the number of distinct keys buffered.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skip.Len()
}

// Bytes returns the current accounted size in bytes, maintained
// incrementally by the underlying skip list as entries are upserted.
func (m *Memtable) Bytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skip.totalBytes
}

// Cursor returns a capability-set iterator (peek/advance, see
// spec.md §9) over the memtable's entries in ascending key order. The
// returned cursor is a live snapshot of the skip list's current
// forward chain; it must only be used while holding the engine's lock
// since nothing here prevents concurrent mutation of the same nodes.
func (m *Memtable) Cursor() *Cursor {
	return &Cursor{node: m.skip.head}
}

// Cursor walks a memtable's entries in ascending order.
type Cursor struct {
	node *skipListNode
}

// Next advances the cursor and reports whether a new entry is
// available.
func (c *Cursor) Next() bool {
	if c.node == nil {
		return false
	}
	c.node = c.node.forward[0]
	return c.node != nil
}

// Record returns the entry at the cursor's current position.
func (c *Cursor) Record() record.Record {
	return c.node.value
}
