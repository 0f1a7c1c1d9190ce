package ssdp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/httpmsg"
	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/metrics"
	"github.com/mm2d/go-upnp/internal/netutil"
)

// ErrNotStarted is returned by Search when called before Start, per
// spec.md §4.2: "Must fail with InvalidState if invoked before start."
var ErrNotStarted = errors.New("ssdp: search server not started")

// DefaultSearchTarget is used when Search is called with an empty target.
const DefaultSearchTarget = "ssdp:all"

type searchConn struct {
	ifaceName string
	conn      *net.UDPConn
	dst       *net.UDPAddr
	isV6      bool
}

// SearchServer sends M-SEARCH on every interface and forwards unicast
// responses to a Listener exactly like alive handling, per spec.md §4.2.
type SearchServer struct {
	conns    []*searchConn
	listener Listener
	logger   *logging.Logger
	metrics  *metrics.Registry

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSearchServer builds one ephemeral unicast socket per matching
// interface, ready to send M-SEARCH and receive responses.
func NewSearchServer(ifaces []netutil.Interface, wantV4, wantV6 bool, listener Listener, logger *logging.Logger, reg *metrics.Registry) *SearchServer {
	s := &SearchServer{listener: listener, logger: logger, metrics: reg}

	for _, ifc := range ifaces {
		if wantV4 {
			for _, addr := range ifc.IPv4Addrs {
				conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: addr.IP, Port: 0})
				if err != nil {
					continue
				}
				s.conns = append(s.conns, &searchConn{
					ifaceName: ifc.Name,
					conn:      conn,
					dst:       &net.UDPAddr{IP: net.ParseIP(MulticastAddrV4), Port: Port},
				})
				break
			}
		}
		if wantV6 {
			for _, addr := range ifc.IPv6Addrs {
				conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: addr.IP, Port: 0, Zone: ifc.Name})
				if err != nil {
					continue
				}
				s.conns = append(s.conns, &searchConn{
					ifaceName: ifc.Name,
					conn:      conn,
					dst:       &net.UDPAddr{IP: net.ParseIP(MulticastAddrV6), Port: Port, Zone: ifc.Name},
					isV6:      true,
				})
				break
			}
		}
	}

	return s
}

// Start launches the response receive loop on every socket.
func (s *SearchServer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, c := range s.conns {
		s.wg.Add(1)
		go s.receiveLoop(runCtx, c)
	}

	s.started.Store(true)
	return nil
}

// Stop cancels the receive loops and closes every socket.
func (s *SearchServer) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, c := range s.conns {
		c.conn.Close()
	}
	s.wg.Wait()
}

// Search broadcasts one M-SEARCH on every interface with the given
// search target (default DefaultSearchTarget), MX=1.
func (s *SearchServer) Search(st string) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if st == "" {
		st = DefaultSearchTarget
	}

	header := http.Header{}
	var lastErr error
	for _, c := range s.conns {
		header.Set("HOST", c.dst.String())
		header.Set("MAN", `"ssdp:discover"`)
		header.Set("MX", "1")
		header.Set("ST", st)

		data := httpmsg.SerializeRequest("M-SEARCH", "*", header, []string{"HOST", "MAN", "MX", "ST"})
		if _, err := c.conn.WriteToUDP(data, c.dst); err != nil {
			s.logger.Warn("ssdp: search send failed", "interface", c.ifaceName, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (s *SearchServer) receiveLoop(ctx context.Context, c *searchConn) {
	defer s.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.conn.SetReadDeadline(clock.Now().Add(time.Second))
		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "closed network connection") {
				return
			}
			continue
		}

		raw, err := parseDatagram(buf[:n])
		if err != nil {
			s.metricsDropped("unparsable")
			continue
		}

		msg := Parse(raw, src.IP, c.ifaceName)

		// Same LOCATION/source check as notify alive (spec.md §4.1 step 4).
		if host := msg.LocationHost(); host != "" && host != src.IP.String() {
			s.logger.Debug("ssdp: drop search response with location/source mismatch", "location_host", host, "source", src.IP)
			s.metricsDropped("location_mismatch")
			continue
		}

		if s.metrics != nil {
			s.metrics.SSDPMessagesReceived.WithLabelValues(string(msg.NTS)).Inc()
		}
		s.listener(msg)
	}
}

func (s *SearchServer) metricsDropped(reason string) {
	if s.metrics != nil {
		s.metrics.SSDPMessagesDropped.WithLabelValues(reason).Inc()
	}
}

