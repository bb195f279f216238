package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/mnohosten/ringkv/internal/lsm"
	"github.com/mnohosten/ringkv/internal/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	engine, err := lsm.Open(lsm.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(engine)
}

func TestHandlePutGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp := s.Handle(ctx, http.MethodPut, []byte("k1"), []byte("hello"))
	if resp.Status != 201 {
		t.Fatalf("expected 201, got %d", resp.Status)
	}

	resp = s.Handle(ctx, http.MethodGet, []byte("k1"), nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	value, _, err := record.DecodeReplicaBody(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(value) != "hello" {
		t.Fatalf("expected value %q, got %q", "hello", value)
	}

	resp = s.Handle(ctx, http.MethodDelete, []byte("k1"), nil)
	if resp.Status != 202 {
		t.Fatalf("expected 202, got %d", resp.Status)
	}

	resp = s.Handle(ctx, http.MethodGet, []byte("k1"), nil)
	if resp.Status != 200 || !resp.Tombstone {
		t.Fatalf("expected tombstone GET (200 with Tombstone header), got status=%d tombstone=%v", resp.Status, resp.Tombstone)
	}
}

func TestHandleGetMissingKey(t *testing.T) {
	s := newTestStore(t)
	resp := s.Handle(context.Background(), http.MethodGet, []byte("never-put"), nil)
	if resp.Status != 404 {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	s := newTestStore(t)
	resp := s.Handle(context.Background(), http.MethodPatch, []byte("k"), nil)
	if resp.Status != 400 {
		t.Fatalf("expected 400, got %d", resp.Status)
	}
}
