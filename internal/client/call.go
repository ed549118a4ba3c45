package client

import (
	"context"
	"sync"
	"time"
)

// Call is the handle for one outgoing request. It resolves exactly once,
// either with a result value or with an error.
type Call struct {
	id        string
	method    string
	createdAt time.Time
	timeout   time.Duration
	done      chan struct{}

	mu        sync.Mutex
	resolved  bool
	value     any
	err       error
	timer     *time.Timer
	onSuccess []func(any)
	onFailure []func(error)
}

func newCall(id, method string, timeout time.Duration) *Call {
	return &Call{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		timeout:   timeout,
		done:      make(chan struct{}),
	}
}

func (c *Call) ID() string {
	return c.id
}

func (c *Call) Method() string {
	return c.method
}

// Done is closed once the call has resolved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome, or ErrCallPending before Done is closed.
func (c *Call) Result() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		return nil, ErrCallPending
	}
	return c.value, c.err
}

// Wait blocks until the call resolves or ctx ends. A canceled ctx does not
// cancel the request; it stays pending until answered or timed out.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnSuccess registers fn for a successful result. If the call already
// succeeded, fn runs immediately on the caller's goroutine.
func (c *Call) OnSuccess(fn func(result any)) *Call {
	if fn == nil {
		return c
	}
	c.mu.Lock()
	if !c.resolved {
		c.onSuccess = append(c.onSuccess, fn)
		c.mu.Unlock()
		return c
	}
	value, err := c.value, c.err
	c.mu.Unlock()
	if err == nil {
		fn(value)
	}
	return c
}

// OnFailure registers fn for a failed call, with the same late-registration
// rule as OnSuccess.
func (c *Call) OnFailure(fn func(err error)) *Call {
	if fn == nil {
		return c
	}
	c.mu.Lock()
	if !c.resolved {
		c.onFailure = append(c.onFailure, fn)
		c.mu.Unlock()
		return c
	}
	err := c.err
	c.mu.Unlock()
	if err != nil {
		fn(err)
	}
	return c
}

// armTimer schedules expire after the call timeout unless the call has
// already resolved.
func (c *Call) armTimer(expire func()) {
	if c.timeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return
	}
	c.timer = time.AfterFunc(c.timeout, expire)
}

// resolve reports false when the call had already resolved. Callbacks run
// after the lock is released.
func (c *Call) resolve(value any, err error) bool {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return false
	}
	c.resolved = true
	c.value = value
	c.err = err
	if c.timer != nil {
		c.timer.Stop()
	}
	success, failure := c.onSuccess, c.onFailure
	c.onSuccess, c.onFailure = nil, nil
	close(c.done)
	c.mu.Unlock()

	if err == nil {
		for _, fn := range success {
			fn(value)
		}
		return true
	}
	for _, fn := range failure {
		fn(err)
	}
	return true
}
