package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/mnohosten/ringkv/internal/record"
)

// Reader is an immutable, memory-mapped on-disk sorted run of records.
// The mapped region is shared read-only across every iterator the
// table hands out; nothing here allocates per yielded record, only
// once at Open to materialize the per-record offset index (grounded on
// the teacher's pkg/storage/mmap_disk_manager.go, which maps the data
// file directly into the process address space with syscall.Mmap
// instead of going through buffered file reads).
type Reader struct {
	path    string
	file    *os.File
	data    []byte   // mmapped file contents
	offsets []uint64 // record start offsets, ascending
	minKey  []byte
	maxKey  []byte

	refs       refcount
	removeFile bool // set by the engine when this table is superseded by compaction
}

// Open memory-maps path and parses its trailer/index so Range lookups
// can binary-search straight into the mapping.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: stat %s: %w", path, err)
	}
	size := info.Size()
	if size < 8 {
		f.Close()
		return nil, fmt.Errorf("sstable: %s too small to contain a trailer", path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: mmap %s: %w", path, err)
	}

	indexStart := binary.BigEndian.Uint64(data[size-8:])
	if int64(indexStart) > size-8 {
		syscall.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("sstable: %s has corrupt trailer", path)
	}

	indexBytes := data[indexStart : size-8]
	if len(indexBytes)%8 != 0 {
		syscall.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("sstable: %s has misaligned index section", path)
	}
	numRecords := len(indexBytes) / 8
	offsets := make([]uint64, numRecords)
	for i := 0; i < numRecords; i++ {
		offsets[i] = binary.BigEndian.Uint64(indexBytes[i*8 : i*8+8])
	}

	r := &Reader{path: path, file: f, data: data, offsets: offsets}
	r.retainInit()
	if numRecords > 0 {
		first := r.recordAt(offsets[0])
		last := r.recordAt(offsets[numRecords-1])
		r.minKey = first.Key
		r.maxKey = last.Key
	}
	return r, nil
}

// Close is equivalent to a single Release; provided so a Reader opened
// and never shared satisfies a plain io.Closer-shaped call site.
func (r *Reader) Close() error {
	return r.Release()
}

// MarkRemoveOnClose flags the backing file for deletion once the last
// reference is released, used by the engine when a compaction
// supersedes this table but an in-flight Range iterator may still hold
// a reference to it.
func (r *Reader) MarkRemoveOnClose() {
	r.removeFile = true
}

// unmap actually tears down the mapping once the reference count
// reaches zero. The caller must ensure no outstanding Iterator is in
// use, per spec.md §9's mmap lifetime rule.
func (r *Reader) unmap() error {
	err := syscall.Munmap(r.data)
	closeErr := r.file.Close()
	if err != nil {
		return fmt.Errorf("sstable: munmap %s: %w", r.path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("sstable: close %s: %w", r.path, closeErr)
	}
	if r.removeFile {
		os.Remove(r.path)
	}
	return nil
}

// Path returns the backing file path.
func (r *Reader) Path() string { return r.path }

// Len returns the number of records in the table.
func (r *Reader) Len() int { return len(r.offsets) }

// recordAt decodes the record starting at byte offset off. The
// returned Key/Value slices alias the mapped region directly; no copy
// is made.
func (r *Reader) recordAt(off uint64) record.Record {
	data := r.data
	keyLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	key := data[off : off+uint64(keyLen)]
	off += uint64(keyLen)

	valueLen := int32(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4

	var value []byte
	tombstone := valueLen < 0
	if !tombstone {
		value = data[off : off+uint64(valueLen)]
		off += uint64(valueLen)
	}

	timestamp := int64(binary.BigEndian.Uint64(data[off : off+8]))

	return record.Record{Key: key, Value: value, Timestamp: timestamp, Tombstone: tombstone}
}

// keyAt returns only the key at record index i, for use in the
// binary search over the offset index.
func (r *Reader) keyAt(i int) []byte {
	off := r.offsets[i]
	keyLen := binary.BigEndian.Uint32(r.data[off : off+4])
	return r.data[off+4 : off+4+uint64(keyLen)]
}

// lowerBound returns the index of the first record with key >= from,
// or len(offsets) if none qualifies.
func (r *Reader) lowerBound(from []byte) int {
	return sort.Search(len(r.offsets), func(i int) bool {
		return bytes.Compare(r.keyAt(i), from) >= 0
	})
}

// Range returns a lazy ascending iterator over records with
// from <= key < to. A nil from means unbounded-below; a nil to means
// unbounded-above. The iterator borrows directly from the mapped
// region and never allocates per record.
func (r *Reader) Range(from, to []byte) *Iterator {
	start := 0
	if from != nil {
		start = r.lowerBound(from)
	}
	return &Iterator{reader: r, idx: start - 1, to: to}
}

// Iterator walks a Reader's records in ascending key order within an
// optional [from, to) bound.
type Iterator struct {
	reader *Reader
	idx    int
	to     []byte
	cur    record.Record
}

// Next advances the iterator and reports whether another record is
// available within bounds.
func (it *Iterator) Next() bool {
	it.idx++
	if it.idx >= len(it.reader.offsets) {
		return false
	}
	rec := it.reader.recordAt(it.reader.offsets[it.idx])
	if it.to != nil && bytes.Compare(rec.Key, it.to) >= 0 {
		it.idx = len(it.reader.offsets)
		return false
	}
	it.cur = rec
	return true
}

// Record returns the entry at the iterator's current position.
func (it *Iterator) Record() record.Record {
	return it.cur
}
