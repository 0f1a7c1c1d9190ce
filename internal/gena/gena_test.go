package gena

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeout_BoundaryCases(t *testing.T) {
	assert.Equal(t, DefaultTimeoutSeconds, ParseTimeout(""))
	assert.Equal(t, DefaultTimeoutSeconds, ParseTimeout("infinite"))
	assert.Equal(t, DefaultTimeoutSeconds, ParseTimeout("INFINITE"))
	assert.Equal(t, DefaultTimeoutSeconds, ParseTimeout("garbage"))
	assert.Equal(t, 300, ParseTimeout("Second-300"))
	assert.Equal(t, 300, ParseTimeout("second-300"))
}

type fakeClient struct {
	resp Response
	err  error
	reqs []Request
}

func (f *fakeClient) Post(ctx context.Context, req Request) (Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func TestSubscribe_Success(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderSID, "sid-1")
	header.Set(HeaderTimeout, "Second-300")
	client := &fakeClient{resp: Response{StatusCode: 200, Header: header}}

	sid, timeout, err := Subscribe(context.Background(), client, "http://dev/evt", CallbackURL("192.0.2.5", 8080), 300)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)
	assert.Equal(t, 300, timeout)
	require.Len(t, client.reqs, 1)
	assert.Equal(t, "SUBSCRIBE", client.reqs[0].Method)
	assert.Equal(t, EventNT, client.reqs[0].Header.Get(HeaderNT))
}

func TestSubscribe_MissingSIDFails(t *testing.T) {
	client := &fakeClient{resp: Response{StatusCode: 200, Header: http.Header{}}}
	_, _, err := Subscribe(context.Background(), client, "http://dev/evt", "<http://x:1/>", 300)
	assert.Error(t, err)
}

func TestRenew_SIDMismatchFails(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderSID, "sid-other")
	client := &fakeClient{resp: Response{StatusCode: 200, Header: header}}

	_, err := Renew(context.Background(), client, "http://dev/evt", "sid-1", 300)
	assert.Error(t, err)
}

func TestParsePropertySet_SingleProperty(t *testing.T) {
	body := `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
  <e:property><Volume>42</Volume></e:property>
</e:propertyset>`

	props, err := ParsePropertySet([]byte(body))
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "Volume", props[0].Name)
	assert.Equal(t, "42", props[0].Value)
}
