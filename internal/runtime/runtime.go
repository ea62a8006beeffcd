// Package runtime is the driver's background runtime: a thin wrapper
// around golang.org/x/sync/errgroup, one Runtime per Driver, shut down
// once, from the top, when the driver is force-closed. Transaction
// transmitters do not run on it; they start their own dispatch and listen
// goroutines.
package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runtime supervises the background work a Driver submits to it: the
// periodic replica-topology refresh, when a node store is configured.
// Submit schedules work; Shutdown cancels the shared context and waits for every
// submitted function to return.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// New creates a Runtime whose lifetime is independent of any caller
// context: it only ends when Shutdown is called.
func New() *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Runtime{ctx: ctx, cancel: cancel, group: group}
}

// Context is canceled the moment Shutdown is called, or the moment any
// submitted function returns a non-nil error.
func (r *Runtime) Context() context.Context { return r.ctx }

// Submit schedules fn to run on the runtime's goroutine pool. fn should
// respect ctx cancellation promptly.
func (r *Runtime) Submit(fn func(ctx context.Context) error) {
	r.group.Go(func() error {
		return fn(r.ctx)
	})
}

// Shutdown cancels the shared context and waits for every submitted
// function to return. Safe to call more than once; only the first call
// does anything.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return r.group.Wait()
}
