// Package api implements the HTTP surface of spec.md §6: the
// always-inline /v0/status endpoint, and the /v0/entity endpoint that
// either coordinates a quorum request or, when marked with the Proxy
// header, hits the local engine directly. Routing and middleware
// setup are grounded on the teacher's pkg/server.Server, which builds
// the same chi.Mux + middleware.RequestID/RealIP/Recoverer/Logger/
// Timeout stack; the route table itself is entirely new, since the
// teacher's is a document-collection REST API with nothing in common
// with a single flat key-value entity resource.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/ringkv/internal/cluster"
	"github.com/mnohosten/ringkv/internal/lsm"
	"github.com/mnohosten/ringkv/internal/metrics"
	"github.com/mnohosten/ringkv/internal/workerpool"
)

// DefaultEntityPoolWorkers is the fixed worker pool size serving
// /v0/entity (spec.md §5: "a bounded worker pool of fixed size
// (default 8)").
const DefaultEntityPoolWorkers = 8

// Config configures a Server.
type Config struct {
	Engine       *lsm.Engine
	Local        cluster.LocalHandler
	Coordinator  *cluster.Coordinator
	Topology     *cluster.Topology
	SelfID       int
	Metrics      *metrics.Registry
	Logger       *slog.Logger
	EntityWorkers int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the node's HTTP front end.
type Server struct {
	cfg         Config
	router      *chi.Mux
	httpSrv     *http.Server
	entityPool  *workerpool.Pool
	shuttingDown atomic.Bool
	log         *slog.Logger
}

// New builds a Server listening on addr, with routes and middleware
// installed but not yet started.
func New(addr string, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	numWorkers := cfg.EntityWorkers
	if numWorkers <= 0 {
		numWorkers = DefaultEntityPoolWorkers
	}

	s := &Server{
		cfg: cfg,
		entityPool: workerpool.New(workerpool.Config{
			NumWorkers: numWorkers,
			QueueSize:  256,
		}),
		log: logger,
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.routes()

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDuration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDuration(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDuration(cfg.IdleTimeout, 120*time.Second),
	}

	return s
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Server) routes() {
	s.router.Get("/v0/status", s.handleStatus)
	s.router.Get("/v0/entity", s.handleEntity)
	s.router.Put("/v0/entity", s.handleEntity)
	s.router.Delete("/v0/entity", s.handleEntity)
	// Any other verb on /v0/entity is a malformed request, not a
	// routing failure: spec.md's status table has no 405, only 400
	// for "unknown method". Registering this explicitly keeps chi from
	// falling back to its own MethodNotAllowedHandler (405) for verbs
	// other than GET/PUT/DELETE.
	s.router.MethodFunc(http.MethodPost, "/v0/entity", s.handleEntity)
	s.router.MethodFunc(http.MethodPatch, "/v0/entity", s.handleEntity)
	s.router.MethodFunc(http.MethodHead, "/v0/entity", s.handleEntity)
	s.router.MethodFunc(http.MethodOptions, "/v0/entity", s.handleEntity)
	s.router.MethodFunc(http.MethodConnect, "/v0/entity", s.handleEntity)
	s.router.MethodFunc(http.MethodTrace, "/v0/entity", s.handleEntity)

	if s.cfg.Metrics != nil {
		metricsHandler := s.cfg.Metrics.Handler()
		s.router.Get("/debug/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.cfg.Metrics.ObserveEngine(s.cfg.Engine.Stats())
			metricsHandler.ServeHTTP(w, r)
		})
	}
	s.router.Get("/debug/topology", s.handleTopology)
	s.router.Get("/debug/engine", s.handleEngineStats)
}

// handleEngineStats answers the storage engine's current size and
// SSTable counts as JSON, for operator inspection alongside
// /debug/topology.
func (s *Server) handleEngineStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cfg.Engine.Stats())
}

// handleStatus answers inline on the accept path, bypassing the
// entity worker pool entirely (spec.md §5).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("I'm OK"))
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "self %d\n", s.cfg.SelfID)
	for _, e := range s.cfg.Topology.Endpoints() {
		fmt.Fprintln(w, e)
	}
}

// handleEntity serves /v0/entity. A Proxy-marked request is handled
// directly against the local engine and must never recurse into
// coordination (spec.md §4.5); an ordinary request is queued on the
// bounded entity pool and coordinated across the replica set.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeStatus(w, 400, nil)
		return
	}

	if r.Header.Get("Proxy") == "true" {
		s.serveLocal(w, r, []byte(id))
		return
	}

	if s.shuttingDown.Load() {
		writeStatus(w, 503, nil)
		return
	}

	ack, from, ok := parseReplicas(r.URL.Query().Get("replicas"), s.cfg.Topology.Len())
	if !ok {
		writeStatus(w, 400, nil)
		return
	}

	var body []byte
	if r.Method == http.MethodPut {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeStatus(w, 400, nil)
			return
		}
		body = b
	} else if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		writeStatus(w, 400, nil)
		return
	}

	type result struct {
		status int
		body   []byte
		err    error
	}
	done := make(chan result, 1)
	ctx := r.Context()
	method := r.Method
	idBytes := []byte(id)
	start := time.Now()

	accepted := s.entityPool.SubmitFunc(func(workerID int) error {
		status, respBody, err := s.cfg.Coordinator.Dispatch(ctx, workerID, method, idBytes, body, ack, from)
		done <- result{status: status, body: respBody, err: err}
		return err
	})
	if !accepted {
		writeStatus(w, 503, nil)
		return
	}

	select {
	case res := <-done:
		if res.err != nil {
			s.log.Error("coordinator dispatch failed", "error", res.err)
			writeStatus(w, 503, nil)
			return
		}
		s.observeEntity(method, res.status, time.Since(start))
		writeStatus(w, res.status, res.body)
	case <-ctx.Done():
		writeStatus(w, 503, nil)
	}
}

func (s *Server) observeEntity(method string, status int, elapsed time.Duration) {
	if s.cfg.Metrics == nil {
		return
	}
	s.cfg.Metrics.EntityRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	s.cfg.Metrics.EntityRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if status == 504 {
		s.cfg.Metrics.QuorumUnmetTotal.Inc()
	}
}

// serveLocal implements a Proxy-marked request by invoking the local
// sub-handler directly and translating its SubResponse into an HTTP
// response in the replica wire form (spec.md §4.5, §6).
func (s *Server) serveLocal(w http.ResponseWriter, r *http.Request, id []byte) {
	var body []byte
	if r.Method == http.MethodPut {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeStatus(w, 400, nil)
			return
		}
		body = b
	}

	resp := s.cfg.Local(r.Context(), r.Method, id, body)
	if resp.Tombstone {
		w.Header().Set("Tombstone", "true")
	}
	writeStatus(w, resp.Status, resp.Body)
}

func writeStatus(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)
	if len(body) > 0 {
		w.Write(body)
	}
}

// parseReplicas parses the replicas=ack/from query value, defaulting
// to from=n, ack=n/2+1 when raw is empty (spec.md §4.5). Returns ok
// false on any malformed or out-of-range value.
func parseReplicas(raw string, n int) (ack, from int, ok bool) {
	if raw == "" {
		return n/2 + 1, n, true
	}
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(parts[0])
	f, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if !(0 < a && a <= f && f <= n) {
		return 0, 0, false
	}
	return a, f, true
}

// Start begins serving and blocks until the listener returns.
func (s *Server) Start() error {
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown implements the ordered stop sequence of spec.md §5: refuse
// new requests, stop the entity pool, close replica client pools,
// drain read-repair, then close the engine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warn("http server shutdown", "error", err)
	}

	s.entityPool.Shutdown()
	s.cfg.Coordinator.CloseReplicaPools()
	s.cfg.Coordinator.DrainReadRepair()

	return s.cfg.Engine.Close()
}
