// Package subscribe implements the subscribe holder of spec.md §4.5:
// the SID->Service map plus its renewal thread. Like internal/registry
// it is generic over a minimal Entry contract, carrying no dependency
// on the public upnp.Service type.
package subscribe

import (
	"context"
	"sync"
	"time"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/deadline"
	"github.com/mm2d/go-upnp/internal/logging"
)

// SafetyMargin is subtracted from a Service's expiry to decide when the
// renewal thread fires, spec.md §4.5: "the earliest expiry minus a
// safety margin (≈ 10 s, but not less than a few hundred ms)".
const SafetyMargin = 10 * time.Second

// MinWait floors the computed wait so a Service expiring in the past
// or in the next instant still gets at least one scheduling pass
// rather than busy-looping.
const MinWait = 200 * time.Millisecond

// idleWait bounds the sleep when the holder is empty.
const idleWait = time.Hour

// Entry is the minimal shape the holder needs from a subscribed Service.
type Entry interface {
	SID() string
	Expiry() time.Time
	KeepRenew() bool
}

// Renewer performs the actual HTTP renewal for an Entry, returning the
// new expiry on success. It is supplied by the caller (the upnp
// package's Service.renew) so this package carries no GENA/HTTP
// dependency of its own.
type Renewer func(ctx context.Context, e Entry) (newExpiry time.Time, ok bool)

// ExpiredReporter is invoked when a renewal fails. A keep_renew=false
// Service whose firing point (expiry minus SafetyMargin) is reached is
// removed from the holder without any ExpiredReporter call.
type ExpiredReporter func(e Entry)

// Holder is the subscribe holder of spec.md §4.5.
type Holder struct {
	mu       sync.Mutex
	services map[string]Entry

	notifier *deadline.Notifier
	renew    Renewer
	onExpire ExpiredReporter
	clock    clock.Clock
	logger   *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHolder builds a Holder.
func NewHolder(renew Renewer, onExpire ExpiredReporter, clk clock.Clock, logger *logging.Logger) *Holder {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Holder{
		services: make(map[string]Entry),
		notifier: deadline.New(),
		renew:    renew,
		onExpire: onExpire,
		clock:    clk,
		logger:   logger,
	}
}

// Add registers or updates a subscribed Service by SID.
func (h *Holder) Add(e Entry) {
	h.mu.Lock()
	h.services[e.SID()] = e
	h.mu.Unlock()
	h.notifier.Notify()
}

// Remove deletes a Service by SID, e.g. on explicit unsubscribe.
func (h *Holder) Remove(sid string) (Entry, bool) {
	h.mu.Lock()
	e, ok := h.services[sid]
	if ok {
		delete(h.services, sid)
	}
	h.mu.Unlock()
	return e, ok
}

// Get looks up a Service by SID.
func (h *Holder) Get(sid string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.services[sid]
	return e, ok
}

// List returns every held subscription in no particular order.
func (h *Holder) List() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, 0, len(h.services))
	for _, e := range h.services {
		out = append(out, e)
	}
	return out
}

// Size returns the number of held subscriptions.
func (h *Holder) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.services)
}

// Clear removes and returns every held subscription, used by
// ControlPoint stop() to unsubscribe everything best-effort.
func (h *Holder) Clear() []Entry {
	h.mu.Lock()
	out := make([]Entry, 0, len(h.services))
	for _, e := range h.services {
		out = append(out, e)
	}
	h.services = make(map[string]Entry)
	h.mu.Unlock()
	return out
}

// Start launches the renewal thread.
func (h *Holder) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	go h.renewalLoop(runCtx)
}

// Stop cancels the renewal thread and waits for it to exit.
func (h *Holder) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *Holder) renewalLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := h.clock.Now()
		h.mu.Lock()
		var due []Entry
		var earliest time.Time
		for _, e := range h.services {
			fireAt := e.Expiry().Add(-SafetyMargin)
			if !fireAt.After(now) {
				due = append(due, e)
				continue
			}
			if earliest.IsZero() || fireAt.Before(earliest) {
				earliest = fireAt
			}
		}
		h.mu.Unlock()

		for _, e := range due {
			h.fire(ctx, e)
		}

		wait := idleWait
		if !earliest.IsZero() {
			if w := h.clock.Until(earliest); w > MinWait {
				wait = w
			} else {
				wait = MinWait
			}
		}
		h.notifier.Wait(wait, ctx.Done())
	}
}

func (h *Holder) fire(ctx context.Context, e Entry) {
	if !e.KeepRenew() {
		h.Remove(e.SID())
		return
	}

	// Renewer mutates e's backing Service in place on success (the Entry
	// held here and the caller's Service are the same object), so the
	// holder itself has nothing further to update.
	if _, ok := h.renew(ctx, e); !ok {
		h.Remove(e.SID())
		if h.onExpire != nil {
			h.onExpire(e)
		}
	}
}
