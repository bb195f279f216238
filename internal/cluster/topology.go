// Package cluster implements the replication coordinator: rendezvous
// hashing over a fixed topology, quorum gather across ranked
// replicas, last-writer-wins response merge, and fire-and-forget
// read-repair of trailing replicas (spec.md §4.4, §4.5).
package cluster

import "sort"

// Topology is the process-wide, immutable set of node endpoints. Each
// node's position in the lexicographically sorted list is its stable
// id for the lifetime of the process (spec.md §3: "Membership is
// immutable for the process lifetime").
type Topology struct {
	endpoints []string
}

// NewTopology sorts endpoints and returns the resulting Topology. The
// input slice is not retained.
func NewTopology(endpoints []string) *Topology {
	sorted := make([]string, len(endpoints))
	copy(sorted, endpoints)
	sort.Strings(sorted)
	return &Topology{endpoints: sorted}
}

// Len returns the number of nodes, N.
func (t *Topology) Len() int { return len(t.endpoints) }

// Endpoint returns the endpoint string for node id.
func (t *Topology) Endpoint(id int) string { return t.endpoints[id] }

// SelfID returns the stable node id matching endpoint, and whether it
// was found in the topology.
func (t *Topology) SelfID(endpoint string) (int, bool) {
	for i, e := range t.endpoints {
		if e == endpoint {
			return i, true
		}
	}
	return 0, false
}

// Endpoints returns a copy of the sorted endpoint list.
func (t *Topology) Endpoints() []string {
	out := make([]string, len(t.endpoints))
	copy(out, t.endpoints)
	return out
}
