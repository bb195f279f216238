// Package store adapts the LSM engine to the local sub-handler
// contract of spec.md §4.5: what the coordinator calls to reach its
// own engine, and what a node's Proxy-marked request handler performs
// for a remote coordinator.
package store

import (
	"context"
	"net/http"
	"time"

	"github.com/mnohosten/ringkv/internal/cluster"
	"github.com/mnohosten/ringkv/internal/lsm"
	"github.com/mnohosten/ringkv/internal/record"
)

// Store wraps an *lsm.Engine with the local sub-handler semantics.
type Store struct {
	engine *lsm.Engine
	now    func() int64
}

// New wraps engine. The clock defaults to the host wall clock in
// milliseconds (spec.md §6: "millisecond wall time from the host").
func New(engine *lsm.Engine) *Store {
	return &Store{engine: engine, now: func() int64 { return time.Now().UnixMilli() }}
}

// Handle implements cluster.LocalHandler.
func (s *Store) Handle(ctx context.Context, method string, id, body []byte) cluster.SubResponse {
	switch method {
	case http.MethodGet:
		return s.get(id)
	case http.MethodPut:
		return s.put(id, body)
	case http.MethodDelete:
		return s.delete(id)
	default:
		return cluster.SubResponse{Status: 400}
	}
}

func (s *Store) get(id []byte) cluster.SubResponse {
	result, err := s.engine.Range(id, record.Next(id))
	if err != nil {
		return cluster.SubResponse{Status: 503}
	}
	defer result.Close()

	if !result.Next() {
		return cluster.SubResponse{Status: 404}
	}
	rec := result.Record()
	return cluster.SubResponse{
		Status:    200,
		Body:      record.EncodeReplicaBody(rec.Value, rec.Timestamp),
		Tombstone: rec.Tombstone,
	}
}

func (s *Store) put(id, value []byte) cluster.SubResponse {
	if err := s.engine.Upsert(record.New(id, value, s.now())); err != nil {
		return cluster.SubResponse{Status: 503}
	}
	return cluster.SubResponse{Status: 201}
}

func (s *Store) delete(id []byte) cluster.SubResponse {
	if err := s.engine.Upsert(record.NewTombstone(id, s.now())); err != nil {
		return cluster.SubResponse{Status: 503}
	}
	return cluster.SubResponse{Status: 202}
}
