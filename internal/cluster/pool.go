package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultPoolSize is the number of pre-opened clients held per remote
// replica when a ReplicaPool is built without an explicit size.
const DefaultPoolSize = 4

// ReplicaPool holds a small fixed-size set of pre-opened HTTP clients
// for one remote replica, so a burst of concurrent subrequests from
// different entity-endpoint workers does not serialize on a single
// connection. Adapted from the teacher's pkg/client.Client, which
// builds one *http.Client over a tuned *http.Transport per remote
// target; here that client is replicated Size times and selected by
// worker identity rather than built once per process.
type ReplicaPool struct {
	endpoint string
	clients  []*http.Client
}

// NewReplicaPool builds a pool of size pre-opened clients targeting
// endpoint (a full base URL, e.g. "http://node-b:8080"), each with its
// own connection-reuse transport tuned the way the teacher's
// client.NewClient tunes its single transport.
func NewReplicaPool(endpoint string, size int, timeout time.Duration) *ReplicaPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	clients := make([]*http.Client, size)
	for i := range clients {
		transport := &http.Transport{
			MaxIdleConns:        10,
			MaxConnsPerHost:     10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		clients[i] = &http.Client{Timeout: timeout, Transport: transport}
	}
	return &ReplicaPool{endpoint: endpoint, clients: clients}
}

// Do issues a proxied subrequest to this pool's replica, carrying the
// Proxy marker header, using the client sharded by workerID so
// concurrent callers spread across the pool's connections. On any
// transport-level failure the error is returned so the caller can
// synthesize the 503 non-confirm (spec.md §4.6); a well-formed HTTP
// response, even a non-2xx one, is never an error here.
func (p *ReplicaPool) Do(ctx context.Context, workerID int, method string, id, body []byte) (SubResponse, error) {
	client := p.clients[workerID%len(p.clients)]

	reqURL := fmt.Sprintf("%s/v0/entity?id=%s", p.endpoint, url.QueryEscape(string(id)))
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return SubResponse{}, fmt.Errorf("cluster: build subrequest: %w", err)
	}
	req.Header.Set("Proxy", "true")

	resp, err := client.Do(req)
	if err != nil {
		return SubResponse{}, fmt.Errorf("cluster: subrequest to %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubResponse{}, fmt.Errorf("cluster: read subresponse from %s: %w", p.endpoint, err)
	}

	return SubResponse{
		Status:    resp.StatusCode,
		Body:      respBody,
		Tombstone: resp.Header.Get("Tombstone") == "true",
	}, nil
}

// Close idles out the pool's transports so their connections are not
// kept alive past shutdown.
func (p *ReplicaPool) Close() {
	for _, c := range p.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}
