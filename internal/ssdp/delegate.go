package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/logging"
)

// State is the delegate lifecycle, spec.md §4.1: "{not-started, starting,
// ready, stopping, stopped}".
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ReadyWait is the cap spec.md §4.1 puts on senders waiting for a socket
// to finish joining its multicast group.
const ReadyWait = 3 * time.Second

const maxPacketSize = 8192

// Delegate owns one multicast-joined UDP socket bound to a single
// network interface — the "SSDP server delegate" of spec.md §4.1. It
// runs a receive loop that parses every datagram into a Message and
// hands it to onMessage, and it can send datagrams (unicast or
// multicast) on the same socket.
type Delegate struct {
	ifaceName string
	iface     *net.Interface
	groupIP   net.IP
	port      int
	onMessage func(*Message)
	logger    *logging.Logger

	state   atomic.Int32
	readyCh chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	pc4    *ipv4.PacketConn
	pc6    *ipv6.PacketConn
	wg     sync.WaitGroup
}

// NewDelegate constructs a delegate for iface, joining groupIP:port on
// Start. onMessage is invoked from the receive-loop goroutine — it must
// not block.
func NewDelegate(iface *net.Interface, groupIP net.IP, port int, onMessage func(*Message), logger *logging.Logger) *Delegate {
	d := &Delegate{
		ifaceName: iface.Name,
		iface:     iface,
		groupIP:   groupIP,
		port:      port,
		onMessage: onMessage,
		logger:    logger,
		readyCh:   make(chan struct{}),
	}
	d.state.Store(int32(StateNotStarted))
	return d
}

// State returns the current lifecycle state.
func (d *Delegate) State() State {
	return State(d.state.Load())
}

// Start binds the socket, joins the multicast group on iface and marks
// the delegate ready before it returns; only the receive loop runs in
// the background. Start is idempotent: calling it again while starting
// or ready is a no-op.
func (d *Delegate) Start(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateNotStarted), int32(StateStarting)) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	isV6 := d.groupIP.To4() == nil

	var network, bindAddr string
	if isV6 {
		network, bindAddr = "udp6", fmt.Sprintf("[::]:%d", d.port)
	} else {
		network, bindAddr = "udp4", fmt.Sprintf(":%d", d.port)
	}

	lc := net.ListenConfig{Control: reuseAddrPort}
	conn, err := lc.ListenPacket(runCtx, network, bindAddr)
	if err != nil {
		cancel()
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("ssdp: delegate %s: bind %s: %w", d.ifaceName, bindAddr, err)
	}

	if isV6 {
		pc := ipv6.NewPacketConn(conn)
		if err := pc.JoinGroup(d.iface, &net.UDPAddr{IP: d.groupIP}); err != nil {
			conn.Close()
			cancel()
			d.state.Store(int32(StateStopped))
			return fmt.Errorf("ssdp: delegate %s: join group: %w", d.ifaceName, err)
		}
		_ = pc.SetControlMessage(ipv6.FlagInterface, true)
		_ = pc.SetMulticastLoopback(false)
		_ = pc.SetMulticastHopLimit(255)
		d.mu.Lock()
		d.pc6 = pc
		d.mu.Unlock()
	} else {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(d.iface, &net.UDPAddr{IP: d.groupIP}); err != nil {
			conn.Close()
			cancel()
			d.state.Store(int32(StateStopped))
			return fmt.Errorf("ssdp: delegate %s: join group: %w", d.ifaceName, err)
		}
		_ = pc.SetControlMessage(ipv4.FlagInterface, true)
		_ = pc.SetMulticastLoopback(false)
		_ = pc.SetMulticastTTL(255)
		d.mu.Lock()
		d.pc4 = pc
		d.mu.Unlock()
	}

	d.state.Store(int32(StateReady))
	close(d.readyCh)

	d.wg.Add(1)
	go d.receiveLoop(runCtx, isV6)

	return nil
}

// WaitReady blocks until the socket has joined its multicast group, or
// ReadyWait elapses, whichever comes first. Returns false on timeout.
func (d *Delegate) WaitReady() bool {
	select {
	case <-d.readyCh:
		return true
	case <-time.After(ReadyWait):
		return false
	}
}

// Stop cancels the receive loop and closes the socket. Idempotent.
func (d *Delegate) Stop() {
	prev := State(d.state.Swap(int32(StateStopping)))
	if prev == StateNotStarted || prev == StateStopped {
		d.state.Store(int32(StateStopped))
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	d.mu.Lock()
	if d.pc4 != nil {
		d.pc4.Close()
	}
	if d.pc6 != nil {
		d.pc6.Close()
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.state.Store(int32(StateStopped))
}

// Send writes data to dst on this delegate's socket. Returns an error if
// the delegate is not ready, per spec.md §4.1: "pending send operations
// observe not-ready and abort."
func (d *Delegate) Send(data []byte, dst *net.UDPAddr) error {
	if d.State() != StateReady {
		return fmt.Errorf("ssdp: delegate %s: not ready", d.ifaceName)
	}
	d.mu.Lock()
	pc4, pc6 := d.pc4, d.pc6
	d.mu.Unlock()

	if pc4 != nil {
		_, err := pc4.WriteTo(data, &ipv4.ControlMessage{IfIndex: d.iface.Index}, dst)
		return err
	}
	if pc6 != nil {
		_, err := pc6.WriteTo(data, &ipv6.ControlMessage{IfIndex: d.iface.Index}, dst)
		return err
	}
	return fmt.Errorf("ssdp: delegate %s: no socket", d.ifaceName)
}

func (d *Delegate) receiveLoop(ctx context.Context, isV6 bool) {
	defer d.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var n int
		var ifIndex int
		var src net.Addr
		var err error

		if isV6 {
			d.pc6.SetReadDeadline(clock.Now().Add(time.Second))
			var cm *ipv6.ControlMessage
			n, cm, src, err = d.pc6.ReadFrom(buf)
			if cm != nil {
				ifIndex = cm.IfIndex
			}
		} else {
			d.pc4.SetReadDeadline(clock.Now().Add(time.Second))
			var cm *ipv4.ControlMessage
			n, cm, src, err = d.pc4.ReadFrom(buf)
			if cm != nil {
				ifIndex = cm.IfIndex
			}
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "closed network connection") {
				return
			}
			continue // read timeout, loop to re-check ctx
		}

		if ifIndex != 0 && ifIndex != d.iface.Index {
			continue
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		if isV6 && udpSrc.IP.To4() != nil {
			continue
		}
		if !isV6 && udpSrc.IP.To4() == nil {
			continue
		}

		msg, err := parseDatagram(buf[:n])
		if err != nil {
			d.logger.Debug("ssdp: drop unparsable datagram", "interface", d.ifaceName, "error", err)
			continue
		}

		sm := Parse(msg, udpSrc.IP, d.ifaceName)
		d.onMessage(sm)
	}
}

// reuseAddrPort sets SO_REUSEADDR and SO_REUSEPORT so multiple per-
// interface sockets can share the well-known SSDP port, matching the
// teacher's mdns.Reflector.attemptStart binding strategy.
func reuseAddrPort(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
