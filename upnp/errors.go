package upnp

import "errors"

// Kind classifies an Error per spec.md §7.
type Kind int

const (
	// Network covers socket bind/send/receive, HTTP non-2xx, I/O failure.
	Network Kind = iota
	// Protocol covers malformed HTTP/SSDP header blocks, missing
	// required headers, and invalid TIMEOUT tokens (falls back to
	// default rather than failing outright).
	Protocol
	// InvalidDescription covers XML parse failure, a missing required
	// element, or an unresolved relatedStateVariable.
	InvalidDescription
	// InvalidState covers an operation invoked in a disallowed
	// lifecycle state, e.g. Search before Start.
	InvalidState
	// NotFound covers a UDN or SID lookup miss when the caller required
	// existence.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "Network"
	case Protocol:
		return "Protocol"
	case InvalidDescription:
		return "InvalidDescription"
	case InvalidState:
		return "InvalidState"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the library's single error type: a Kind, a message, and an
// optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
