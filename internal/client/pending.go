package client

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingRequest is a read-only view of one in-flight call.
type PendingRequest struct {
	ID         string
	Method     string
	CreatedAt  time.Time
	Timeout    time.Duration
	DeadlineAt time.Time
}

// pendingTable stores in-flight calls by request id. take is the only way
// out, so whichever path takes an entry first owns its resolution.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*Call
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		calls: make(map[string]*Call),
	}
}

// add reports false when the id is empty or already pending.
func (p *pendingTable) add(call *Call) bool {
	key := strings.TrimSpace(call.id)
	if key == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.calls[key]; exists {
		return false
	}
	p.calls[key] = call
	return true
}

func (p *pendingTable) take(id string) (*Call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	return call, ok
}

// drain empties the table and returns what it held.
func (p *pendingTable) drain() []*Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Call, 0, len(p.calls))
	for _, call := range p.calls {
		out = append(out, call)
	}
	p.calls = make(map[string]*Call)
	return out
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *pendingTable) snapshot() []PendingRequest {
	p.mu.Lock()
	out := make([]PendingRequest, 0, len(p.calls))
	for _, call := range p.calls {
		out = append(out, PendingRequest{
			ID:         call.id,
			Method:     call.method,
			CreatedAt:  call.createdAt,
			Timeout:    call.timeout,
			DeadlineAt: call.createdAt.Add(call.timeout),
		})
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
