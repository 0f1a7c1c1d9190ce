package ssdp

import (
	"net"
	"strconv"
	"strings"

	"github.com/mm2d/go-upnp/internal/httpmsg"
)

// NTS is the SSDP notification sub-type, spec.md's "NTS".
type NTS string

const (
	NTSAlive  NTS = "ssdp:alive"
	NTSByebye NTS = "ssdp:byebye"
	NTSUpdate NTS = "ssdp:update"
	NTSNone   NTS = ""
)

// DefaultMaxAge is used when CACHE-CONTROL is missing or unparsable.
const DefaultMaxAge = 1800

// Message is the typed view over an httpmsg.Message that spec.md §3
// calls SsdpMessage: header set plus source InterfaceAddress, with
// UUID/NT/NTS/LOCATION/max-age pulled out of the headers.
type Message struct {
	Raw       *httpmsg.Message
	Source    net.IP
	Interface string

	Method string // "NOTIFY", "M-SEARCH", or "" for a search response

	USN      string
	UUID     string
	NT       string // NT for NOTIFY, ST for M-SEARCH/response
	NTS      NTS
	Location string
	MaxAge   int
	Server   string
}

// Parse builds a Message from a parsed HTTP-shaped datagram and the
// socket-reported source address/interface.
func Parse(raw *httpmsg.Message, source net.IP, ifaceName string) *Message {
	m := &Message{
		Raw:       raw,
		Source:    source,
		Interface: ifaceName,
		Method:    raw.Method,
		USN:       raw.Header.Get("USN"),
		Location:  raw.Header.Get("LOCATION"),
		Server:    raw.Header.Get("SERVER"),
		MaxAge:    DefaultMaxAge,
	}

	if raw.IsResponse {
		m.NT = raw.Header.Get("ST")
	} else {
		m.NT = raw.Header.Get("NT")
		if m.NT == "" {
			m.NT = raw.Header.Get("ST")
		}
	}

	switch strings.ToLower(raw.Header.Get("NTS")) {
	case "ssdp:alive":
		m.NTS = NTSAlive
	case "ssdp:byebye":
		m.NTS = NTSByebye
	case "ssdp:update":
		m.NTS = NTSUpdate
	default:
		m.NTS = NTSNone
	}

	m.UUID = uuidFromUSN(m.USN)

	if cc := raw.Header.Get("CACHE-CONTROL"); cc != "" {
		if age, ok := parseMaxAge(cc); ok {
			m.MaxAge = age
		}
	}

	return m
}

// uuidFromUSN extracts the "uuid:..." prefix from a composite USN such
// as "uuid:XXXX::upnp:rootdevice" or "uuid:XXXX::urn:...:serviceId:...".
// A USN with no "::" separator is itself the UDN. The result is
// lowercased so it matches the canonical UDN form the description
// resolver stores in the registry.
func uuidFromUSN(usn string) string {
	if idx := strings.Index(usn, "::"); idx >= 0 {
		return strings.ToLower(usn[:idx])
	}
	return strings.ToLower(usn)
}

// parseMaxAge extracts the integer from "max-age=<n>" in a CACHE-CONTROL
// header value, case-insensitively, ignoring surrounding directives.
func parseMaxAge(cacheControl string) (int, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		if strings.HasPrefix(lower, "max-age=") {
			v := part[len("max-age="):]
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

// LocationHost returns the host portion of the LOCATION URL, or "" if
// LOCATION is absent or unparsable. Used for the source-address check
// spec.md §4.1 step 4 requires for NOTIFY alive and search responses.
func (m *Message) LocationHost() string {
	loc := m.Location
	if loc == "" {
		return ""
	}
	// Strip scheme.
	if idx := strings.Index(loc, "://"); idx >= 0 {
		loc = loc[idx+3:]
	}
	// Strip path.
	if idx := strings.IndexByte(loc, '/'); idx >= 0 {
		loc = loc[:idx]
	}
	// Strip port.
	if host, _, err := net.SplitHostPort(loc); err == nil {
		return host
	}
	return loc
}
