// Package record defines the on-disk and in-memory unit of data for the
// LSM engine: a key, an optional value (absent for a tombstone), and a
// millisecond timestamp used for last-writer-wins ordering across
// replicas and across SSTable levels.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Record is a single versioned key-value pair. A Record with Tombstone
// true represents a deletion; Value is nil in that case but Timestamp
// still participates in last-writer-wins ordering.
type Record struct {
	Key       []byte
	Value     []byte
	Timestamp int64
	Tombstone bool
}

// New builds a live record.
func New(key, value []byte, timestamp int64) Record {
	return Record{Key: key, Value: value, Timestamp: timestamp}
}

// NewTombstone builds a deletion marker for key.
func NewTombstone(key []byte, timestamp int64) Record {
	return Record{Key: key, Timestamp: timestamp, Tombstone: true}
}

// Compare orders two records by key alone, strictly ascending.
func Compare(a, b Record) int {
	return bytes.Compare(a.Key, b.Key)
}

// Next returns the shortest key strictly greater than key: key with a
// single zero byte appended. Used to build an exclusive upper bound
// for a point lookup expressed as a range.
func Next(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

// Validate rejects the one client-facing invariant violation the data
// model does not tolerate: an empty key.
func Validate(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("record: key must not be empty")
	}
	return nil
}

// EncodeReplicaBody builds the raw replica-form GET body described in
// spec.md §4.5/§6: value bytes (empty for a tombstone) followed by the
// big-endian i64 timestamp.
func EncodeReplicaBody(value []byte, timestamp int64) []byte {
	buf := make([]byte, len(value)+8)
	copy(buf, value)
	binary.BigEndian.PutUint64(buf[len(value):], uint64(timestamp))
	return buf
}

// DecodeReplicaBody splits a raw replica-form GET body back into its
// value and timestamp. Returns an error if body is shorter than the
// trailing 8-byte timestamp.
func DecodeReplicaBody(body []byte) (value []byte, timestamp int64, err error) {
	if len(body) < 8 {
		return nil, 0, fmt.Errorf("record: body too short to contain a timestamp")
	}
	split := len(body) - 8
	value = body[:split]
	timestamp = int64(binary.BigEndian.Uint64(body[split:]))
	return value, timestamp, nil
}
