package gena

import (
	"context"
	"net"
	"strconv"

	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/ssdp"
)

// Multicast eventing address/port (UPnP's multicast-eventing extension).
const (
	MulticastEventAddr = "239.255.255.250"
	MulticastEventPort = 7900
)

// MulticastEventHandler delivers a multicast property-change batch,
// spec.md §4.6: "on_event(uuid, svcid, lvl, seq, properties)".
type MulticastEventHandler func(uuid, svcid, lvl string, seq int, properties []Property)

// MulticastReceiver is the "secondary multicast socket" spec.md §4.6
// describes for the multicast event variant. It reuses the same
// per-interface socket-owning delegate the notify receiver uses, since
// the transport mechanics (join group, receive, parse HTTP-shaped
// datagram) are identical — only the header set and dispatch differ.
type MulticastReceiver struct {
	delegate *ssdp.Delegate
	onEvent  MulticastEventHandler
	logger   *logging.Logger
}

// NewMulticastReceiver builds a receiver bound to iface.
func NewMulticastReceiver(iface *net.Interface, onEvent MulticastEventHandler, logger *logging.Logger) *MulticastReceiver {
	r := &MulticastReceiver{onEvent: onEvent, logger: logger}
	r.delegate = ssdp.NewDelegate(iface, net.ParseIP(MulticastEventAddr), MulticastEventPort, r.handle, logger)
	return r
}

func (r *MulticastReceiver) Start(ctx context.Context) error { return r.delegate.Start(ctx) }
func (r *MulticastReceiver) Stop()                           { r.delegate.Stop() }

func (r *MulticastReceiver) handle(msg *ssdp.Message) {
	if msg.Method != "NOTIFY" || msg.Raw == nil {
		return
	}

	header := msg.Raw.Header
	seq, err := strconv.Atoi(header.Get("SEQ"))
	if err != nil {
		r.logger.Debug("gena: multicast event with invalid SEQ", "value", header.Get("SEQ"))
		return
	}

	props, err := ParsePropertySet(msg.Raw.Body)
	if err != nil {
		r.logger.Debug("gena: multicast event with invalid propertyset", "error", err)
		return
	}

	r.onEvent(msg.UUID, header.Get("SVCID"), header.Get("LVL"), seq, props)
}
