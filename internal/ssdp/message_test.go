package ssdp

import (
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mm2d/go-upnp/internal/httpmsg"
)

func TestParse_AliveDerivesFields(t *testing.T) {
	header := http.Header{}
	header.Set("NT", "upnp:rootdevice")
	header.Set("NTS", "ssdp:alive")
	header.Set("USN", "uuid:01234567-89ab-cdef-0123-456789abcdef::upnp:rootdevice")
	header.Set("LOCATION", "http://192.0.2.2:12345/device.xml")
	header.Set("CACHE-CONTROL", "max-age=1800")

	raw := &httpmsg.Message{Method: "NOTIFY", Header: header}
	msg := Parse(raw, net.ParseIP("192.0.2.2"), "eth0")

	assert.Equal(t, "uuid:01234567-89ab-cdef-0123-456789abcdef", msg.UUID)
	assert.Equal(t, NTSAlive, msg.NTS)
	assert.Equal(t, 1800, msg.MaxAge)
	assert.Equal(t, "192.0.2.2", msg.LocationHost())
}

func TestParse_MaxAgeDefault_MissingMalformedNoDirective(t *testing.T) {
	cases := []string{"", "max-age=bogus", "no-cache"}
	for _, cc := range cases {
		header := http.Header{}
		if cc != "" {
			header.Set("CACHE-CONTROL", cc)
		}
		raw := &httpmsg.Message{Method: "NOTIFY", Header: header}
		msg := Parse(raw, net.ParseIP("192.0.2.2"), "eth0")
		assert.Equal(t, DefaultMaxAge, msg.MaxAge)
	}
}

func TestUUIDFromUSN_NoSeparatorIsUDN(t *testing.T) {
	assert.Equal(t, "uuid:abc", uuidFromUSN("uuid:abc"))
}
