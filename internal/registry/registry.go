// Package registry implements the device holder of spec.md §4.4: the
// authoritative UDN->Device map plus its expiry thread. It is generic
// over a minimal Entry contract so it carries no dependency on the
// public upnp.Device type.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/deadline"
	"github.com/mm2d/go-upnp/internal/logging"
)

// Entry is the minimal shape the holder needs from a Device.
type Entry interface {
	UDN() string
	Expiry() time.Time
}

// idleWait bounds how long the expiry loop sleeps when the registry is
// empty; it just re-checks for cancellation, since a Notifier wakeup on
// the next Add is the real signal.
const idleWait = time.Hour

// Holder is the device holder of spec.md §4.4. All mutations are
// serialised under a single mutex, matching the "single monitor"
// requirement of spec.md §5.
type Holder struct {
	mu       sync.Mutex
	devices  map[string]Entry
	notifier *deadline.Notifier
	onExpire func(Entry)
	clock    clock.Clock
	logger   *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHolder builds a Holder. onExpire is invoked (off the lock) for
// every Device the expiry thread removes, so the caller can cascade
// the unsubscribe spec.md's invariant (iii) requires.
func NewHolder(onExpire func(Entry), clk clock.Clock, logger *logging.Logger) *Holder {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Holder{
		devices:  make(map[string]Entry),
		notifier: deadline.New(),
		onExpire: onExpire,
		clock:    clk,
		logger:   logger,
	}
}

// Add inserts or replaces a Device (invariant (iv): at most one Device
// exists per UDN at any moment).
func (h *Holder) Add(e Entry) {
	h.mu.Lock()
	h.devices[e.UDN()] = e
	h.mu.Unlock()
	h.notifier.Notify()
}

// Remove deletes a Device by UDN, e.g. on receipt of byebye.
func (h *Holder) Remove(udn string) (Entry, bool) {
	h.mu.Lock()
	e, ok := h.devices[udn]
	if ok {
		delete(h.devices, udn)
	}
	h.mu.Unlock()
	return e, ok
}

// Get looks up a Device by UDN.
func (h *Holder) Get(udn string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.devices[udn]
	return e, ok
}

// List returns every held Device in no particular order.
func (h *Holder) List() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, 0, len(h.devices))
	for _, e := range h.devices {
		out = append(out, e)
	}
	return out
}

// Size returns the number of held Devices.
func (h *Holder) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.devices)
}

// Clear removes and returns every held Device, used by ControlPoint
// stop() before the registry is discarded.
func (h *Holder) Clear() []Entry {
	h.mu.Lock()
	out := make([]Entry, 0, len(h.devices))
	for _, e := range h.devices {
		out = append(out, e)
	}
	h.devices = make(map[string]Entry)
	h.mu.Unlock()
	return out
}

// Start launches the expiry thread.
func (h *Holder) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	go h.expiryLoop(runCtx)
}

// Stop cancels the expiry thread and waits for it to exit.
func (h *Holder) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *Holder) expiryLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := h.clock.Now()
		h.mu.Lock()
		var expired []string
		var earliest time.Time
		for udn, e := range h.devices {
			exp := e.Expiry()
			if !exp.After(now) {
				expired = append(expired, udn)
				continue
			}
			if earliest.IsZero() || exp.Before(earliest) {
				earliest = exp
			}
		}
		removed := make([]Entry, 0, len(expired))
		for _, udn := range expired {
			if e, ok := h.devices[udn]; ok {
				delete(h.devices, udn)
				removed = append(removed, e)
			}
		}
		h.mu.Unlock()

		for _, e := range removed {
			if h.onExpire != nil {
				h.onExpire(e)
			}
		}

		wait := idleWait
		if !earliest.IsZero() {
			if w := h.clock.Until(earliest); w > 0 {
				wait = w
			} else {
				wait = 0
			}
		}
		h.notifier.Wait(wait, ctx.Done())
	}
}
