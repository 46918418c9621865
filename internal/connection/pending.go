package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Result is the outcome of one request. Exactly one of Payload or Err
// is meaningful.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// Request is the caller's handle to an in-flight request.
type Request struct {
	ID   string
	Kind string

	result chan Result
}

// Await blocks until the request resolves, is rejected, or ctx ends.
func (r *Request) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-r.result:
		return res.Payload, res.Err
	}
}

// Result returns the result channel for callers that select on it.
func (r *Request) Result() <-chan Result {
	return r.result
}

// pendingRequest tracks one outstanding request until its response
// arrives, it times out, or the connection drops.
type pendingRequest struct {
	id        string
	seq       uint64
	kind      string
	createdAt time.Time
	result    chan Result // buffered 1; written exactly once
	timer     *time.Timer // nil when no per-request timeout was set
}

// correlator assigns unique ids to outbound requests and fulfills each
// caller's result slot exactly once. Ids embed a monotonic sequence so
// mass rejection on connection loss is deterministic.
type correlator struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextSeq uint64
	pending map[string]*pendingRequest
}

func newCorrelator(logger *slog.Logger) *correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &correlator{
		logger:  logger,
		pending: make(map[string]*pendingRequest),
	}
}

// register creates a PendingRequest with a fresh id. If timeout > 0 the
// request is rejected with ErrRequestTimeout when it elapses.
func (c *correlator) register(kind string, timeout time.Duration) *Request {
	c.mu.Lock()
	c.nextSeq++
	seq := c.nextSeq
	id := fmt.Sprintf("%s_%d", kind, seq)

	p := &pendingRequest{
		id:        id,
		seq:       seq,
		kind:      kind,
		createdAt: time.Now(),
		result:    make(chan Result, 1),
	}
	c.pending[id] = p
	c.mu.Unlock()

	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() {
			c.Reject(id, ErrRequestTimeout)
		})
	}

	return &Request{ID: id, Kind: kind, result: p.result}
}

// Resolve fulfills a pending request with a response payload. Returns
// false if the id is unknown or already settled; a second resolve or
// reject for the same id is a no-op.
func (c *correlator) Resolve(id string, payload json.RawMessage) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	p.result <- Result{Payload: payload}
	return true
}

// Reject fails a pending request. Idempotent like Resolve.
func (c *correlator) Reject(id string, err error) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	p.result <- Result{Err: err}
	return true
}

// take removes and returns the pending entry, stopping its timer.
func (c *correlator) take(id string) *pendingRequest {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

// failAll rejects every pending request with err, in ascending id
// order, and clears the table. Pending requests never outlive their
// connection.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	all := make([]*pendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		all = append(all, p)
	}
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	for _, p := range all {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.result <- Result{Err: err}
		c.logger.Debug("rejected pending request", "id", p.id, "error", err)
	}
	return len(all)
}

// Len returns the number of pending requests.
func (c *correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
