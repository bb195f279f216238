package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mnohosten/ringkv/internal/record"
)

// Writer streams an ordered sequence of records to a fresh SSTable
// file, following the binary layout in spec.md §4.1:
//
//	for each record: key_len(u32) key value_len(i32, -1=tombstone) value timestamp(i64)
//	then: one u64 offset per record (the index section)
//	then: one trailing u64 giving the byte offset where the index section begins
//
// Files are append-only and never rewritten; Finalize or Abort must
// always be called, and a failed Finalize removes the partial file so
// callers can never observe it (spec.md §4.1, §7).
type Writer struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	offsets []uint64
	offset  uint64
	lastKey []byte
	n       int
	done    bool
}

// NewWriter creates path and returns a Writer ready to accept records
// in strictly ascending key order.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}
	return &Writer{path: path, file: f, buf: bufio.NewWriter(f)}, nil
}

// Write appends rec. Records must arrive in strictly ascending key
// order with no duplicate keys; violating that is a caller bug, not a
// recoverable error, so Write only checks it with an assertion-style
// error rather than silently tolerating it.
func (w *Writer) Write(rec record.Record) error {
	if w.lastKey != nil && bytes.Compare(w.lastKey, rec.Key) >= 0 {
		return fmt.Errorf("sstable: out-of-order or duplicate key %q", rec.Key)
	}

	var header [4 + 4]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(rec.Key)))

	valueLen := int32(-1)
	if !rec.Tombstone {
		valueLen = int32(len(rec.Value))
	}
	binary.BigEndian.PutUint32(header[4:8], uint32(valueLen))

	n := 0
	nn, err := w.buf.Write(header[0:4])
	n += nn
	if err == nil {
		nn, err = w.buf.Write(rec.Key)
		n += nn
	}
	if err == nil {
		nn, err = w.buf.Write(header[4:8])
		n += nn
	}
	if err == nil && valueLen >= 0 {
		nn, err = w.buf.Write(rec.Value)
		n += nn
	}
	if err == nil {
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(rec.Timestamp))
		nn, err = w.buf.Write(ts[:])
		n += nn
	}
	if err != nil {
		return fmt.Errorf("sstable: write record: %w", err)
	}

	w.offsets = append(w.offsets, w.offset)
	w.offset += uint64(n)
	w.n++
	w.lastKey = append(w.lastKey[:0], rec.Key...)
	return nil
}

// Finalize writes the index section and trailer, syncs, and closes
// the file, returning an opened Reader over it. On any error the
// partial file is removed.
func (w *Writer) Finalize() (*Reader, error) {
	if err := w.writeIndex(); err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return nil, fmt.Errorf("sstable: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return nil, fmt.Errorf("sstable: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.Abort()
		return nil, fmt.Errorf("sstable: close: %w", err)
	}
	w.done = true

	if w.n == 0 {
		// An SSTable with no records has no reason to exist; flush
		// checks for this case before Finalize, and compaction handles
		// the nil Reader returned here.
		os.Remove(w.path)
		return nil, nil
	}

	return Open(w.path)
}

func (w *Writer) writeIndex() error {
	indexStart := w.offset
	for _, off := range w.offsets {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], off)
		if _, err := w.buf.Write(b[:]); err != nil {
			return fmt.Errorf("sstable: write index entry: %w", err)
		}
	}
	var trailer [8]byte
	binary.BigEndian.PutUint64(trailer[:], indexStart)
	if _, err := w.buf.Write(trailer[:]); err != nil {
		return fmt.Errorf("sstable: write trailer: %w", err)
	}
	return nil
}

// Abort discards the writer and removes whatever partial file exists.
// Safe to call after a successful Finalize (no-op).
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.file.Close()
	os.Remove(w.path)
}
