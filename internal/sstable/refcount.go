package sstable

import "sync/atomic"

// Retain and Release implement shared ownership of the mapped region
// across the engine's own SSTable list and any in-flight Range
// iterators (spec.md §9: "share ownership of the mapping with the
// iterator" as the alternative to scoping iterators strictly inside
// the engine lock — this engine does both, since a Range call flushes
// under the lock but then hands its iterator to the caller outside
// it). A Reader starts life with one reference, owned by whoever
// called Open; Retain/Release adjust from there, and the mapping is
// only unmapped once the count reaches zero.
type refcount struct {
	n atomic.Int32
}

func (r *Reader) retainInit() {
	r.refs.n.Store(1)
}

// Retain adds a reference, returned by Range to keep the mapping
// alive for as long as an iterator over it might still be read.
func (r *Reader) Retain() {
	r.refs.n.Add(1)
}

// Release drops a reference. When the count reaches zero the mapping
// is unmapped and the file descriptor closed; if the reader was
// marked for deletion (superseded by a compaction), the backing file
// is removed at that point too.
func (r *Reader) Release() error {
	if r.refs.n.Add(-1) > 0 {
		return nil
	}
	return r.unmap()
}
