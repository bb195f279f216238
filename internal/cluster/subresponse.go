package cluster

import "context"

// SubResponse is the uniform shape of a per-replica answer, whether
// produced by the local sub-handler or by a proxied HTTP call to a
// remote node (spec.md §9 "self-vs-remote dispatch": both branches
// must be typed identically so the coordinator's logic is oblivious
// to which one ran).
type SubResponse struct {
	Status    int
	Body      []byte
	Tombstone bool
}

// confirms reports whether this response counts toward quorum
// (spec.md §4.5 step 3, GLOSSARY "Confirm").
func (r SubResponse) confirms() bool {
	switch r.Status {
	case 200, 201, 202, 404:
		return true
	default:
		return false
	}
}

// LocalHandler performs the local sub-handler operation described in
// spec.md §4.5 directly against this node's engine: it is what the
// coordinator calls for a replica that is this node, and what a
// node's Proxy-marked request handler calls too.
type LocalHandler func(ctx context.Context, method string, id, body []byte) SubResponse
