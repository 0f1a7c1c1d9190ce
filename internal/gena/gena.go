// Package gena implements the GENA (General Event Notification
// Architecture) wire operations spec.md §4.5/§4.6/§6 requires:
// SUBSCRIBE/RENEW/UNSUBSCRIBE client calls and the NOTIFY event
// receiver, independent of any particular Service/Device type so it
// carries no dependency on the public upnp package.
package gena

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Headers and tokens spec.md §6 names.
const (
	HeaderNT       = "NT"
	HeaderNTS      = "NTS"
	HeaderSID      = "SID"
	HeaderSEQ      = "SEQ"
	HeaderCallback = "CALLBACK"
	HeaderTimeout  = "TIMEOUT"

	EventNT  = "upnp:event"
	EventNTS = "upnp:propchange"

	DefaultTimeoutSeconds = 300
)

// Request and Response mirror the HttpClient collaborator contract of
// spec.md §6: "post(request) -> response ... IO errors surfaced as
// NetworkError." The concrete error classification happens at the
// caller (upnp package); this package returns plain wrapped errors.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPClient is the subset of the collaborator contract GENA needs.
// Any type satisfying this method set — including the public
// upnp.HTTPClient implementations — works here without an explicit
// dependency, because Go interfaces are structural.
type HTTPClient interface {
	Post(ctx context.Context, req Request) (Response, error)
}

// CallbackURL renders the angle-bracketed, trailing-slash CALLBACK
// value spec.md §6 requires: "<http://<ip>:<port>/>".
func CallbackURL(ip string, port int) string {
	return fmt.Sprintf("<http://%s:%d/>", ip, port)
}

// TimeoutHeader renders "Second-<n>" for an outgoing TIMEOUT header.
func TimeoutHeader(seconds int) string {
	return fmt.Sprintf("Second-%d", seconds)
}

// ParseTimeout parses an incoming TIMEOUT header value. "infinite"
// (any case), empty, or malformed input all coerce to
// DefaultTimeoutSeconds, per spec.md §8's boundary behaviour.
func ParseTimeout(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultTimeoutSeconds
	}
	if strings.EqualFold(value, "infinite") {
		return DefaultTimeoutSeconds
	}
	const prefix = "second-"
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, prefix) {
		return DefaultTimeoutSeconds
	}
	n, err := strconv.Atoi(value[len(prefix):])
	if err != nil || n <= 0 {
		return DefaultTimeoutSeconds
	}
	return n
}

// Subscribe issues SUBSCRIBE against eventSubURL with a fresh CALLBACK,
// per spec.md §4.5. Returns the SID and the effective timeout in
// seconds. A non-200 response or a response missing SID is a failure
// with the state left unchanged by the caller.
func Subscribe(ctx context.Context, client HTTPClient, eventSubURL, callbackURL string, timeoutSeconds int) (sid string, timeout int, err error) {
	header := http.Header{}
	header.Set(HeaderNT, EventNT)
	header.Set(HeaderCallback, callbackURL)
	header.Set(HeaderTimeout, TimeoutHeader(timeoutSeconds))

	resp, err := client.Post(ctx, Request{Method: "SUBSCRIBE", URL: eventSubURL, Header: header})
	if err != nil {
		return "", 0, fmt.Errorf("gena: subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("gena: subscribe: unexpected status %d", resp.StatusCode)
	}
	sid = resp.Header.Get(HeaderSID)
	if sid == "" {
		return "", 0, fmt.Errorf("gena: subscribe: response missing SID")
	}
	return sid, ParseTimeout(resp.Header.Get(HeaderTimeout)), nil
}

// Renew issues SUBSCRIBE with an existing SID, per spec.md §4.5.
func Renew(ctx context.Context, client HTTPClient, eventSubURL, sid string, timeoutSeconds int) (timeout int, err error) {
	header := http.Header{}
	header.Set(HeaderSID, sid)
	header.Set(HeaderTimeout, TimeoutHeader(timeoutSeconds))

	resp, err := client.Post(ctx, Request{Method: "SUBSCRIBE", URL: eventSubURL, Header: header})
	if err != nil {
		return 0, fmt.Errorf("gena: renew: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gena: renew: unexpected status %d", resp.StatusCode)
	}
	respSID := resp.Header.Get(HeaderSID)
	if respSID != "" && respSID != sid {
		return 0, fmt.Errorf("gena: renew: SID mismatch (got %q, want %q)", respSID, sid)
	}
	return ParseTimeout(resp.Header.Get(HeaderTimeout)), nil
}

// Unsubscribe issues UNSUBSCRIBE with sid, per spec.md §4.5.
func Unsubscribe(ctx context.Context, client HTTPClient, eventSubURL, sid string) error {
	header := http.Header{}
	header.Set(HeaderSID, sid)

	resp, err := client.Post(ctx, Request{Method: "UNSUBSCRIBE", URL: eventSubURL, Header: header})
	if err != nil {
		return fmt.Errorf("gena: unsubscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gena: unsubscribe: unexpected status %d", resp.StatusCode)
	}
	return nil
}
