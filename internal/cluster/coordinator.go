package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mnohosten/ringkv/internal/metrics"
	"github.com/mnohosten/ringkv/internal/record"
	"github.com/mnohosten/ringkv/internal/workerpool"
)

// ErrNotEnoughReplicas carries the message Dispatch puts in the body of
// its 504 answer when fewer than ack replicas confirmed after all from
// attempts (spec.md §4.5 step 4); Dispatch does not return it as an
// error.
var ErrNotEnoughReplicas = fmt.Errorf("Not Enough Replicas")

// DefaultSubrequestTimeout bounds a single per-replica subrequest
// (spec.md §5: "each per-replica subrequest has a bounded timeout
// (default 100ms)").
const DefaultSubrequestTimeout = 100 * time.Millisecond

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Topology           *Topology
	SelfID             int
	Local              LocalHandler
	Pools              map[int]*ReplicaPool // keyed by node id, excludes SelfID
	SubrequestTimeout  time.Duration         // zero means DefaultSubrequestTimeout
	ReadRepairPoolSize int                   // zero means 2 workers
	Logger             *slog.Logger
	Metrics            *metrics.Registry // optional; nil disables instrumentation
}

// Coordinator implements the replication algorithm of spec.md §4.5:
// rendezvous-ranked quorum gather with sequential subrequest dispatch,
// last-writer-wins response merge, and fire-and-forget read-repair of
// any replicas not reached while gathering quorum.
type Coordinator struct {
	topology *Topology
	selfID   int
	local    LocalHandler
	pools    map[int]*ReplicaPool
	timeout  time.Duration
	repair   *workerpool.Pool
	log      *slog.Logger
	metrics  *metrics.Registry
}

// NewCoordinator builds a Coordinator from cfg, starting its
// read-repair pool.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	timeout := cfg.SubrequestTimeout
	if timeout <= 0 {
		timeout = DefaultSubrequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		topology: cfg.Topology,
		selfID:   cfg.SelfID,
		local:    cfg.Local,
		pools:    cfg.Pools,
		timeout:  timeout,
		repair: workerpool.New(workerpool.Config{
			NumWorkers: orDefault(cfg.ReadRepairPoolSize, 2),
			QueueSize:  64,
		}),
		log:     logger,
		metrics: cfg.Metrics,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Dispatch runs the coordinator algorithm for one client request:
// GET and DELETE carry no body; PUT carries the raw value to store.
// workerID identifies the entity-endpoint worker running this
// dispatch, forwarded into each subrequest so replica client pools
// can shard connections by it (spec.md §4.6).
func (c *Coordinator) Dispatch(ctx context.Context, workerID int, method string, id, body []byte, ack, from int) (status int, respBody []byte, err error) {
	ranked := Rank(c.topology, id)
	replicas := ranked[:from]

	responses := make([]SubResponse, 0, from)
	confirms := 0
	queried := 0
	for ; queried < from; queried++ {
		resp := c.callReplica(ctx, workerID, replicas[queried], method, id, body)
		responses = append(responses, resp)
		if resp.confirms() {
			confirms++
		}
		if c.metrics != nil {
			c.metrics.QuorumConfirmsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
		}
		if confirms >= ack {
			queried++
			break
		}
	}

	if confirms < ack {
		return 504, []byte(ErrNotEnoughReplicas.Error()), nil
	}

	status, respBody = mergeResponses(method, responses)

	if queried < from {
		c.scheduleReadRepair(workerID, replicas[queried:from], method, id, body)
	}

	return status, respBody, nil
}

func (c *Coordinator) callReplica(ctx context.Context, workerID, nodeID int, method string, id, body []byte) SubResponse {
	if nodeID == c.selfID {
		return c.local(ctx, method, id, body)
	}

	pool, ok := c.pools[nodeID]
	if !ok {
		return SubResponse{Status: 503}
	}

	subCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := pool.Do(subCtx, workerID, method, id, body)
	if err != nil {
		c.log.Warn("subrequest failed", "node", nodeID, "method", method, "error", err)
		return SubResponse{Status: 503}
	}
	return resp
}

// scheduleReadRepair fires a detached task that queries every node in
// trailing and discards the results; it never touches the original
// request context or its deadline (spec.md §4.5 step 6, §5 "Client-
// side cancellation is not honored").
func (c *Coordinator) scheduleReadRepair(workerID int, trailing []int, method string, id, body []byte) {
	if len(trailing) == 0 {
		return
	}
	idCopy := append([]byte(nil), id...)
	bodyCopy := append([]byte(nil), body...)
	correlationID := uuid.NewString()

	ok := c.repair.SubmitFunc(func(repairWorkerID int) error {
		for _, nodeID := range trailing {
			resp := c.callReplica(context.Background(), repairWorkerID, nodeID, method, idCopy, bodyCopy)
			c.log.Debug("read repair", "correlation_id", correlationID, "node", nodeID, "method", method, "status", resp.Status)
			if c.metrics != nil {
				c.metrics.ReadRepairTasksTotal.WithLabelValues("dispatched").Inc()
			}
		}
		return nil
	})
	if !ok {
		c.log.Warn("read repair pool full, dropping task", "correlation_id", correlationID, "trailing", trailing)
		if c.metrics != nil {
			c.metrics.ReadRepairTasksTotal.WithLabelValues("queue_full").Inc()
		}
	}
}

// mergeResponses implements spec.md §4.5's response merge.
func mergeResponses(method string, responses []SubResponse) (int, []byte) {
	switch method {
	case "PUT":
		return 201, nil
	case "DELETE":
		return 202, nil
	}

	const noVote = int64(-2)
	bestTS := noVote
	var best SubResponse
	for _, r := range responses {
		if !r.confirms() {
			continue
		}
		ts := int64(-1)
		if r.Status == 200 {
			if _, parsed, err := record.DecodeReplicaBody(r.Body); err == nil {
				ts = parsed
			}
		}
		if ts > bestTS {
			bestTS = ts
			best = r
		}
	}

	if bestTS < 0 {
		return 404, nil
	}
	if best.Tombstone {
		return 404, nil
	}
	value, _, err := record.DecodeReplicaBody(best.Body)
	if err != nil {
		return 404, nil
	}
	return 200, value
}

// CloseReplicaPools idles out every remote replica client pool. Called
// during shutdown before the read-repair pool is drained, matching
// the ordering in spec.md §5: "closes all per-replica client pools,
// waits for the read-repair pool to drain". Outstanding read-repair
// calls against a closed pool simply fail and are discarded, which is
// tolerated (§7: "read-repair is fire-and-forget").
func (c *Coordinator) CloseReplicaPools() {
	for _, p := range c.pools {
		p.Close()
	}
}

// DrainReadRepair stops accepting new read-repair tasks and blocks
// until every queued one has finished.
func (c *Coordinator) DrainReadRepair() {
	c.repair.ShutdownAndDrain()
}
