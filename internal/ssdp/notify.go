package ssdp

import (
	"context"
	"net"

	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/metrics"
	"github.com/mm2d/go-upnp/internal/netutil"
)

// SSDP well-known addresses and port, spec.md §4.1.
const (
	MulticastAddrV4 = "239.255.255.250"
	MulticastAddrV6 = "ff02::c" // link-local scope
	Port            = 1900
)

// Listener receives validated SSDP messages.
type Listener func(*Message)

// NotifyReceiver runs one multicast-joined Delegate per interface,
// applies the per-packet validation algorithm of spec.md §4.1, and
// forwards admitted messages to a Listener.
type NotifyReceiver struct {
	delegates    []*Delegate
	prefixesByIf map[string][]*net.IPNet
	segmentCheck bool
	listener     Listener
	logger       *logging.Logger
	metrics      *metrics.Registry
}

// NewNotifyReceiver builds receivers for every interface in ifaces that
// matches the requested protocol family (wantV4/wantV6).
func NewNotifyReceiver(ifaces []netutil.Interface, wantV4, wantV6, segmentCheck bool, listener Listener, logger *logging.Logger, reg *metrics.Registry) *NotifyReceiver {
	r := &NotifyReceiver{
		prefixesByIf: make(map[string][]*net.IPNet),
		segmentCheck: segmentCheck,
		listener:     listener,
		logger:       logger,
		metrics:      reg,
	}

	for _, ifc := range ifaces {
		if ifc.NetIface == nil {
			continue
		}
		r.prefixesByIf[ifc.Name] = ifc.IPv4Addrs

		if wantV4 && len(ifc.IPv4Addrs) > 0 {
			d := NewDelegate(ifc.NetIface, net.ParseIP(MulticastAddrV4), Port, r.handle, logger)
			r.delegates = append(r.delegates, d)
		}
		if wantV6 && len(ifc.IPv6Addrs) > 0 {
			d := NewDelegate(ifc.NetIface, net.ParseIP(MulticastAddrV6), Port, r.handle, logger)
			r.delegates = append(r.delegates, d)
		}
	}

	return r
}

// Start starts every per-interface delegate and waits (bounded) for each
// to join its multicast group. Returns a Network error only if every
// delegate failed to bind — spec.md §7: "Fatal errors at start (socket
// bind on all interfaces fails) surface as Network from start."
func (r *NotifyReceiver) Start(ctx context.Context) error {
	if len(r.delegates) == 0 {
		return nil
	}

	failures := 0
	for _, d := range r.delegates {
		if err := d.Start(ctx); err != nil {
			r.logger.Warn("ssdp: notify delegate failed to start", "error", err)
			failures++
			continue
		}
		d.WaitReady()
	}

	if failures == len(r.delegates) {
		return &bindAllFailedError{}
	}
	return nil
}

// Stop stops every delegate.
func (r *NotifyReceiver) Stop() {
	for _, d := range r.delegates {
		d.Stop()
	}
}

type bindAllFailedError struct{}

func (e *bindAllFailedError) Error() string { return "ssdp: failed to bind on every interface" }

// handle applies spec.md §4.1's per-packet algorithm before forwarding
// to the listener. IP-version filtering already happened in the
// delegate's receive loop.
func (r *NotifyReceiver) handle(msg *Message) {
	// Step 2: segment check (IPv4 only).
	if r.segmentCheck && msg.Source.To4() != nil {
		prefixes := r.prefixesByIf[msg.Interface]
		inSegment := false
		for _, p := range prefixes {
			if netutil.InSegment(p, msg.Source) {
				inSegment = true
				break
			}
		}
		if !inSegment {
			r.logger.Debug("ssdp: drop out-of-segment notify", "source", msg.Source, "interface", msg.Interface)
			r.metricsDropped("out_of_segment")
			return
		}
	}

	// Step 3: self-echo of M-SEARCH must not reach the notify listener.
	if msg.Method == "M-SEARCH" {
		r.metricsDropped("self_search")
		return
	}

	// Step 4: LOCATION host must match datagram source for alive/response;
	// byebye carries no URL to fetch and is exempt.
	if msg.NTS != NTSByebye {
		if host := msg.LocationHost(); host != "" && host != msg.Source.String() {
			r.logger.Debug("ssdp: drop location/source mismatch", "location_host", host, "source", msg.Source)
			r.metricsDropped("location_mismatch")
			return
		}
	}

	if r.metrics != nil {
		r.metrics.SSDPMessagesReceived.WithLabelValues(string(msg.NTS)).Inc()
	}
	r.listener(msg)
}

func (r *NotifyReceiver) metricsDropped(reason string) {
	if r.metrics != nil {
		r.metrics.SSDPMessagesDropped.WithLabelValues(reason).Inc()
	}
}
