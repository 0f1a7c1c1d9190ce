// Package upnp implements a UPnP ControlPoint: discovery of devices
// over SSDP multicast, description/SCPD loading over HTTP, action
// invocation over SOAP, and GENA event subscriptions with automatic
// renewal.
package upnp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/dispatch"
	"github.com/mm2d/go-upnp/internal/gena"
	"github.com/mm2d/go-upnp/internal/loader"
	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/metrics"
	"github.com/mm2d/go-upnp/internal/netutil"
	"github.com/mm2d/go-upnp/internal/registry"
	"github.com/mm2d/go-upnp/internal/ssdp"
	"github.com/mm2d/go-upnp/internal/subscribe"
)

type lifecycleState int32

const (
	stateNotStarted lifecycleState = iota
	stateStarted
	stateStopped
	stateTerminated
)

// ControlPoint is the facade of spec.md §1: it observes a changing
// population of devices announced over SSDP multicast, loads their
// descriptions over HTTP, and offers applications a stable, queryable
// view of discovered devices plus bidirectional event eventing.
type ControlPoint struct {
	options Options
	logger  *logging.Logger
	clock   clock.Clock
	metrics *metrics.Registry

	ifaces []netutil.Interface

	registryHolder  *registry.Holder
	subscribeHolder *subscribe.Holder
	loader          *loader.Loader
	callback        *dispatch.Executor

	notifyReceiver   *ssdp.NotifyReceiver
	searchServer     *ssdp.SearchServer
	eventReceiver    *gena.Receiver
	multicastRecv    *gena.MulticastReceiver

	state  atomic.Int32
	cancel context.CancelFunc
	runCtx context.Context

	mu                 sync.RWMutex
	discoveryListeners []DiscoveryListener
	eventListeners     []EventListener
	notifyListeners    []NotifyEventListener
	subExpiryListeners []SubscriptionListener
}

// NewControlPoint builds a ControlPoint from opts. Call Start to begin
// discovery.
func NewControlPoint(opts Options) *ControlPoint {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewDefaultHTTPClient()
	}

	cp := &ControlPoint{
		options: opts,
		logger:  logging.New(logging.DefaultConfig()),
		clock:   &clock.RealClock{},
		metrics: metrics.Get(),
	}

	cp.registryHolder = registry.NewHolder(cp.onDeviceExpired, cp.clock, cp.logger)
	cp.subscribeHolder = subscribe.NewHolder(cp.onRenew, cp.onSubscriptionExpired, cp.clock, cp.logger)
	cp.loader = loader.New(&loaderFetcher{client: opts.HTTPClient}, cp, cp.logger, cp.metrics)
	cp.callback = dispatch.NewExecutor(0, cp.logger)

	return cp
}

// Start binds the SSDP receivers and event server, and begins the
// registry/subscription scheduler threads. Idempotent: calling Start
// after it has already succeeded is a no-op. Re-Start after Terminate
// is not supported.
func (cp *ControlPoint) Start(ctx context.Context) error {
	if !cp.state.CompareAndSwap(int32(stateNotStarted), int32(stateStarted)) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cp.cancel = cancel
	cp.runCtx = runCtx

	ifaces, err := cp.resolveInterfaces()
	if err != nil {
		return newError(Network, "start: enumerate interfaces", err)
	}
	cp.ifaces = ifaces

	wantV4 := cp.options.Protocol != IPv6Only
	wantV6 := cp.options.Protocol == IPv6Only || cp.options.Protocol == DualStack

	cp.notifyReceiver = ssdp.NewNotifyReceiver(ifaces, wantV4, wantV6, cp.options.NotifySegmentCheck, cp.onSSDPMessage, cp.logger, cp.metrics)
	if err := cp.notifyReceiver.Start(runCtx); err != nil {
		return newError(Network, "start: notify receiver", err)
	}

	cp.searchServer = ssdp.NewSearchServer(ifaces, wantV4, wantV6, cp.onSSDPMessage, cp.logger, cp.metrics)
	if err := cp.searchServer.Start(runCtx); err != nil {
		return newError(Network, "start: search server", err)
	}

	cp.eventReceiver = gena.NewReceiver(cp.lookupSubscription, cp.acceptProperty, cp.onNotifyEvent, cp.logger)
	if _, err := cp.eventReceiver.Start(runCtx); err != nil {
		return newError(Network, "start: event receiver", err)
	}

	if len(ifaces) > 0 && ifaces[0].NetIface != nil {
		cp.multicastRecv = gena.NewMulticastReceiver(ifaces[0].NetIface, cp.onMulticastEvent, cp.logger)
		if err := cp.multicastRecv.Start(runCtx); err != nil {
			cp.logger.Warn("upnp: multicast event receiver failed to start", "error", err)
		}
	}

	cp.registryHolder.Start(runCtx)
	cp.subscribeHolder.Start(runCtx)
	cp.callback.Start(runCtx)

	return nil
}

// Stop cancels the server tasks, closes sockets, waits briefly for the
// loader pool to drain, issues best-effort unsubscribes, then clears
// the registry, per spec.md §5. Idempotent.
func (cp *ControlPoint) Stop() {
	if !cp.state.CompareAndSwap(int32(stateStarted), int32(stateStopped)) {
		return
	}

	if cp.cancel != nil {
		cp.cancel()
	}
	if cp.notifyReceiver != nil {
		cp.notifyReceiver.Stop()
	}
	if cp.searchServer != nil {
		cp.searchServer.Stop()
	}
	if cp.eventReceiver != nil {
		cp.eventReceiver.Stop()
	}
	if cp.multicastRecv != nil {
		cp.multicastRecv.Stop()
	}

	cp.loader.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, entry := range cp.subscribeHolder.Clear() {
		svc := entry.(*Service)
		svc.Unsubscribe(ctx)
	}
	cp.subscribeHolder.Stop()

	cp.registryHolder.Clear()
	cp.registryHolder.Stop()
}

// Terminate stops the ControlPoint (if still running) and additionally
// shuts down the callback executor and releases the event port. A
// terminated ControlPoint cannot be Start-ed again.
func (cp *ControlPoint) Terminate() {
	cp.Stop()
	if !cp.state.CompareAndSwap(int32(stateStopped), int32(stateTerminated)) {
		cp.state.Store(int32(stateTerminated))
	}
	cp.callback.Stop()
}

// Search broadcasts an M-SEARCH with the given search target (default
// "ssdp:all") on every bound interface.
func (cp *ControlPoint) Search(st string) error {
	if cp.state.Load() != int32(stateStarted) {
		return newError(InvalidState, "search: control point not started", nil)
	}
	if err := cp.searchServer.Search(st); err != nil {
		return newError(Network, "search", err)
	}
	return nil
}

// GetDevice looks up a discovered Device by UDN.
func (cp *ControlPoint) GetDevice(udn string) (*Device, bool) {
	entry, ok := cp.registryHolder.Get(udn)
	if !ok {
		return nil, false
	}
	return entry.(*deviceEntry).device, true
}

// Devices returns every currently discovered Device.
func (cp *ControlPoint) Devices() []*Device {
	entries := cp.registryHolder.List()
	out := make([]*Device, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.(*deviceEntry).device)
	}
	return out
}

func (cp *ControlPoint) resolveInterfaces() ([]netutil.Interface, error) {
	all, err := netutil.Enumerate(netutil.RealNetlinker{})
	if err != nil {
		return nil, err
	}
	if len(cp.options.Interfaces) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(cp.options.Interfaces))
	for _, ni := range cp.options.Interfaces {
		wanted[ni.Name] = true
	}
	var filtered []netutil.Interface
	for _, ifc := range all {
		if wanted[ifc.Name] {
			filtered = append(filtered, ifc)
		}
	}
	return filtered, nil
}

func (cp *ControlPoint) httpClient() HTTPClient { return cp.options.HTTPClient }

func (cp *ControlPoint) eventPort() int {
	if cp.eventReceiver == nil {
		return 0
	}
	return cp.eventReceiver.Port()
}

// localIP picks the address that should appear in a subscription's
// CALLBACK header: an IPv4 address on the interface the Device was
// discovered on, falling back to the first interface with an address.
func (cp *ControlPoint) localIP(d *Device) string {
	d.mu.Lock()
	ifaceName := d.ifaceName
	d.mu.Unlock()

	for _, ifc := range cp.ifaces {
		if ifc.Name == ifaceName && len(ifc.IPv4Addrs) > 0 {
			return ifc.IPv4Addrs[0].IP.String()
		}
	}
	for _, ifc := range cp.ifaces {
		if len(ifc.IPv4Addrs) > 0 {
			return ifc.IPv4Addrs[0].IP.String()
		}
	}
	return "127.0.0.1"
}

func (cp *ControlPoint) metricsSubscribeAttempt(ok bool) {
	if cp.metrics == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
		cp.metrics.SubscriptionsActive.Inc()
	}
	cp.metrics.SubscriptionAttempts.WithLabelValues(outcome).Inc()
}

func (cp *ControlPoint) metricsRenewal(ok bool) {
	if cp.metrics == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	cp.metrics.SubscriptionRenewals.WithLabelValues(outcome).Inc()
}
