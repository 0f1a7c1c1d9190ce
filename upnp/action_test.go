package upnp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyResponse(status int, body string) Response {
	return Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}
}

func testAction(cp *ControlPoint) *Action {
	dev := &Device{UDN: "uuid:test-device"}
	svc := &Service{
		Device:      dev,
		ServiceType: "urn:schemas-upnp-org:service:Test:1",
		ServiceID:   "urn:upnp-org:serviceId:Test",
		ControlURL:  "http://192.0.2.10:80/ctl",
		cp:          cp,
	}
	act := &Action{Service: svc, Name: "GetVolume"}
	act.Arguments = []*Argument{
		{Action: act, Name: "InstanceID", Direction: "in"},
		{Action: act, Name: "CurrentVolume", Direction: "out"},
	}
	svc.Actions = []*Action{act}
	return act
}

func TestAction_InvokeSuccessParsesOutArguments(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("POST", bodyResponse(http.StatusOK, `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body><u:GetVolumeResponse xmlns:u="urn:schemas-upnp-org:service:Test:1">
<CurrentVolume>42</CurrentVolume>
</u:GetVolumeResponse></s:Body></s:Envelope>`))
	cp := testControlPoint(t, client)
	act := testAction(cp)

	out, err := act.Invoke(context.Background(), map[string]string{"InstanceID": "0"})
	require.NoError(t, err)
	assert.Equal(t, "42", out["CurrentVolume"])

	require.Len(t, client.posts, 1)
	assert.Equal(t, "POST", client.posts[0].Method)
	require.NotEmpty(t, client.posts[0].Header["SOAPACTION"])
	assert.Contains(t, client.posts[0].Header["SOAPACTION"][0], "GetVolume")
	assert.Contains(t, string(client.posts[0].Body), "<InstanceID>0</InstanceID>")
}

func TestAction_InvokeFaultReturnsProtocolError(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("POST", bodyResponse(http.StatusInternalServerError, `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body><s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
<errorCode>402</errorCode>
<errorDescription>Invalid Args</errorDescription>
</UPnPError></detail>
</s:Fault></s:Body></s:Envelope>`))
	cp := testControlPoint(t, client)
	act := testAction(cp)

	_, err := act.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, Protocol))
	assert.Contains(t, err.Error(), "402")
}

func TestAction_BuildEnvelopeEscapesArgumentValues(t *testing.T) {
	act := &Action{Name: "SetName", Service: &Service{ServiceType: "urn:x:1"}}
	act.Arguments = []*Argument{{Action: act, Name: "Name", Direction: "in"}}

	env := act.buildEnvelope(map[string]string{"Name": "A & B <tag>"})
	assert.Contains(t, string(env), "A &amp; B &lt;tag&gt;")
}

func TestAction_InArgumentsOutArgumentsFilterByDirection(t *testing.T) {
	cp := testControlPoint(t, newScriptedHTTPClient())
	act := testAction(cp)

	in := act.InArguments()
	out := act.OutArguments()
	require.Len(t, in, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "InstanceID", in[0].Name)
	assert.Equal(t, "CurrentVolume", out[0].Name)
}
