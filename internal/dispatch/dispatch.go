// Package dispatch implements the single-threaded callback executor
// spec.md §5 calls for: "the callback path must be single-threaded to
// give listeners a serialised view. Use a single consumer task reading
// from a bounded queue; producers are the receive loops and holders."
package dispatch

import (
	"context"
	"sync"

	"github.com/mm2d/go-upnp/internal/logging"
)

// DefaultQueueSize bounds the pending-callback queue. A discovery burst
// or an event storm queues rather than blocking its producer thread up
// to this many pending callbacks.
const DefaultQueueSize = 256

// Executor runs every submitted func serially, in submission order, on
// a single goroutine — the "callback executor" of spec.md §5.
type Executor struct {
	queue  chan func()
	stopCh chan struct{}
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor builds an Executor with the given queue capacity. A
// capacity of 0 uses DefaultQueueSize.
func NewExecutor(capacity int, logger *logging.Logger) *Executor {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Executor{
		queue:  make(chan func(), capacity),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches the consumer goroutine.
func (e *Executor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(runCtx)
}

// Submit enqueues fn for serial execution, blocking if the queue is
// full so backpressure falls on the producer (a receive loop or a
// holder's scheduler thread) rather than dropping a listener call
// silently. A no-op once Stop has been called.
func (e *Executor) Submit(fn func()) {
	select {
	case e.queue <- fn:
	case <-e.stopCh:
	}
}

// Stop signals the consumer to drain the queue and exit, then waits
// for it.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.stopCh)
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.queue:
			fn()
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

func (e *Executor) drain() {
	for {
		select {
		case fn := <-e.queue:
			fn()
		default:
			return
		}
	}
}
