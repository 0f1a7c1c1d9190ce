package gena

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mm2d/go-upnp/internal/logging"
)

// SubscriptionLookup resolves a SID to an opaque subscription reference
// owned by the caller (the upnp package's Service). gena carries no
// dependency on the domain types themselves.
type SubscriptionLookup func(sid string) (ref any, ok bool)

// PropertyAccepter reports whether ref's Service owns a StateVariable
// named name with sendEvents=true, spec.md §4.6's dispatch filter.
type PropertyAccepter func(ref any, name string) bool

// EventHandler delivers one accepted (name, value) pair for ref at the
// given SEQ.
type EventHandler func(ref any, seq int, name, value string)

// Receiver is the GENA event receiver of spec.md §4.6: a TCP server
// bound to an ephemeral port that accepts NOTIFY and dispatches
// property changes by SID.
type Receiver struct {
	lookup  SubscriptionLookup
	accept  PropertyAccepter
	onEvent EventHandler
	logger  *logging.Logger

	listener net.Listener
	server   *http.Server
	port     int
}

// NewReceiver builds a Receiver. Call Start to bind and begin serving.
func NewReceiver(lookup SubscriptionLookup, accept PropertyAccepter, onEvent EventHandler, logger *logging.Logger) *Receiver {
	return &Receiver{lookup: lookup, accept: accept, onEvent: onEvent, logger: logger}
}

// Start binds an ephemeral TCP port and serves in the background,
// returning the bound port so it can be advertised in CALLBACK headers.
func (r *Receiver) Start(ctx context.Context) (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	r.listener = ln
	r.port = ln.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", r.handleNotify)
	r.server = &http.Server{Handler: mux}

	go func() {
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.logger.Warn("gena: event receiver stopped", "error", err)
		}
	}()

	return r.port, nil
}

// Port returns the bound listening port.
func (r *Receiver) Port() int { return r.port }

// Stop gracefully shuts down the HTTP server.
func (r *Receiver) Stop() {
	if r.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.server.Shutdown(ctx)
}

func (r *Receiver) handleNotify(w http.ResponseWriter, req *http.Request) {
	if req.Method != "NOTIFY" {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sid := req.Header.Get(HeaderSID)
	nt := req.Header.Get(HeaderNT)
	nts := req.Header.Get(HeaderNTS)
	seqStr := req.Header.Get(HeaderSEQ)
	if sid == "" || nt == "" || nts == "" || seqStr == "" {
		http.Error(w, "missing required header", http.StatusBadRequest)
		return
	}

	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		http.Error(w, "invalid SEQ", http.StatusBadRequest)
		return
	}

	ref, ok := r.lookup(sid)
	if !ok {
		http.Error(w, "unknown SID", http.StatusPreconditionFailed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	props, err := ParsePropertySet(body)
	if err != nil {
		http.Error(w, "invalid propertyset", http.StatusBadRequest)
		return
	}

	// Reply before dispatch: listener latency must not stall the publisher.
	w.WriteHeader(http.StatusOK)

	for _, p := range props {
		if !r.accept(ref, p.Name) {
			continue
		}
		r.onEvent(ref, seq, p.Name, p.Value)
	}
}
