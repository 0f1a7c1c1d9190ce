package upnp

import "net"

// IPFamily selects which IP families a ControlPoint binds to.
type IPFamily int

const (
	// DualStack binds both IPv4 and IPv6 sockets (default).
	DualStack IPFamily = iota
	IPv4Only
	IPv6Only
)

// IconMeta is the description-declared metadata for one icon entry; used
// by IconFilter to decide which icons are worth downloading.
type IconMeta struct {
	Mimetype string
	Width    int
	Height   int
	Depth    int
	URL      string
}

// IconFilter selects which of a Device's declared icons should have
// their binary downloaded. The default (nil) downloads none.
type IconFilter func(icons []IconMeta) []IconMeta

// SsdpMessageFilter is applied before device-loader admission; the
// default (nil) accepts every message.
type SsdpMessageFilter func(uuid, location string) bool

// Options configures a ControlPoint at construction time, spec.md §6.
type Options struct {
	// Interfaces to bind. Empty means every non-loopback, up interface
	// that supports multicast.
	Interfaces []*net.Interface

	// Protocol selects IPv4/IPv6/dual-stack. Zero value is DualStack.
	Protocol IPFamily

	// NotifySegmentCheck drops IPv4 NOTIFY messages whose source lies
	// outside the receiving interface's prefix.
	NotifySegmentCheck bool

	// IconFilter selects icons to download; nil downloads none.
	IconFilter IconFilter

	// SsdpFilter gates device-loader admission; nil accepts all.
	SsdpFilter SsdpMessageFilter

	// HTTPClient overrides the default net/http-based collaborator.
	HTTPClient HTTPClient
}

// DefaultOptions returns the zero-value Options with DualStack
// protocol and no filtering.
func DefaultOptions() Options {
	return Options{Protocol: DualStack}
}
