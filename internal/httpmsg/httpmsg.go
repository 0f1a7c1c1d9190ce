// Package httpmsg parses and serializes the HTTP-shaped start-line plus
// header block that SSDP and multicast GENA datagrams (over UDP) use on
// the wire. Parsing is done by handing the raw bytes to net/http's own
// RFC 7230 reader rather than hand-rolling a header scanner.
package httpmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// Message is a parsed HTTP-shaped datagram: either a request line
// ("NOTIFY * HTTP/1.1", "M-SEARCH * HTTP/1.1") or a status line
// ("HTTP/1.1 200 OK"), plus its header set and body.
type Message struct {
	IsResponse bool

	Method     string // request form only
	RequestURI string // request form only

	StatusCode int    // response form only
	StatusText string // response form only

	Proto  string
	Header http.Header
	Body   []byte
}

// ParseRequest parses a request-form datagram ("NOTIFY * HTTP/1.1\r\n...").
func ParseRequest(data []byte) (*Message, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, fmt.Errorf("httpmsg: parse request: %w", err)
	}
	body, _ := readAllLimited(req.Body)
	// net/http moves the Host header into req.Host; put it back so the
	// header set is the one that arrived on the wire.
	if req.Host != "" && req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.Host)
	}
	return &Message{
		Method:     req.Method,
		RequestURI: req.RequestURI,
		Proto:      req.Proto,
		Header:     req.Header,
		Body:       body,
	}, nil
}

// ParseResponse parses a status-line datagram ("HTTP/1.1 200 OK\r\n...").
func ParseResponse(data []byte) (*Message, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	resp, err := http.ReadResponse(r, nil)
	if err != nil {
		return nil, fmt.Errorf("httpmsg: parse response: %w", err)
	}
	body, _ := readAllLimited(resp.Body)
	return &Message{
		IsResponse: true,
		StatusCode: resp.StatusCode,
		StatusText: resp.Status,
		Proto:      resp.Proto,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Parse tries request form first, then response form. SSDP datagrams are
// always one or the other; most callers know which they expect and should
// call ParseRequest/ParseResponse directly, but the notify/search
// receivers see a mix on the same socket.
func Parse(data []byte) (*Message, error) {
	if msg, err := ParseRequest(data); err == nil {
		return msg, nil
	}
	return ParseResponse(data)
}

func readAllLimited(r interface{ Read([]byte) (int, error) }) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	chunk := make([]byte, 512)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			break
		}
	}
	return buf.Bytes(), nil
}

// SerializeRequest renders a request-form message for sending on the wire.
// Headers are emitted in the order given by keys (case preserved), falling
// back to sorted header-map order when keys is nil.
func SerializeRequest(method, requestURI string, header http.Header, keys []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, requestURI)
	writeHeaders(&b, header, keys)
	b.WriteString("\r\n")
	return b.Bytes()
}

// SerializeResponse renders a status-line message for sending on the wire.
func SerializeResponse(statusCode int, statusText string, header http.Header, keys []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", statusCode, statusText)
	writeHeaders(&b, header, keys)
	b.WriteString("\r\n")
	return b.Bytes()
}

func writeHeaders(b *bytes.Buffer, header http.Header, keys []string) {
	if keys == nil {
		keys = make([]string, 0, len(header))
		for k := range header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	for _, k := range keys {
		for _, v := range header[textproto.CanonicalMIMEHeaderKey(k)] {
			fmt.Fprintf(b, "%s: %s\r\n", k, v)
		}
	}
}

// HeadersEqual compares two header sets ignoring key order and header-set
// order of insertion, used by the SSDP round-trip property in spec.md §8.
func HeadersEqual(a, b http.Header) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !strings.EqualFold(av[i], bv[i]) {
				return false
			}
		}
	}
	return true
}
