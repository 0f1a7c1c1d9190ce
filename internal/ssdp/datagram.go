package ssdp

import (
	"fmt"

	"github.com/mm2d/go-upnp/internal/httpmsg"
)

// parseDatagram parses a raw UDP payload as either an HTTP-shaped
// request (NOTIFY, M-SEARCH) or a status line (a search response),
// since both arrive on the same multicast/unicast socket.
func parseDatagram(data []byte) (*httpmsg.Message, error) {
	if msg, err := httpmsg.ParseRequest(data); err == nil {
		return msg, nil
	}
	if msg, err := httpmsg.ParseResponse(data); err == nil {
		return msg, nil
	}
	return nil, fmt.Errorf("ssdp: datagram is neither a request nor a response")
}
