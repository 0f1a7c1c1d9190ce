package upnp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mm2d/go-upnp/internal/clock"
	"github.com/mm2d/go-upnp/internal/logging"
)

// scriptedHTTPClient replays canned responses keyed by HTTP method, in
// the order Post is called for each method.
type scriptedHTTPClient struct {
	mu        sync.Mutex
	responses map[string][]Response
	posts     []Request
}

func newScriptedHTTPClient() *scriptedHTTPClient {
	return &scriptedHTTPClient{responses: make(map[string][]Response)}
}

func (c *scriptedHTTPClient) queue(method string, resp Response) {
	c.responses[method] = append(c.responses[method], resp)
}

func (c *scriptedHTTPClient) Post(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, req)
	queue := c.responses[req.Method]
	if len(queue) == 0 {
		return Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	next := queue[0]
	c.responses[req.Method] = queue[1:]
	return next, nil
}

func (c *scriptedHTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

func headerResponse(status int, headers map[string]string) Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(""))}
}

func testControlPoint(t *testing.T, client HTTPClient) *ControlPoint {
	t.Helper()
	opts := DefaultOptions()
	opts.HTTPClient = client
	cp := NewControlPoint(opts)
	cp.logger = logging.New(logging.DefaultConfig())
	cp.clock = clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return cp
}

func testService(cp *ControlPoint) *Service {
	dev := &Device{UDN: "uuid:test-device"}
	svc := &Service{
		Device:      dev,
		ServiceType: "urn:schemas-upnp-org:service:Test:1",
		ServiceID:   "urn:upnp-org:serviceId:Test",
		EventSubURL: "http://192.0.2.10:80/evt",
		cp:          cp,
	}
	dev.Services = []*Service{svc}
	return svc
}

func TestService_SubscribeSucceeds(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("SUBSCRIBE", headerResponse(http.StatusOK, map[string]string{
		"SID": "uuid:sub-1", "TIMEOUT": "Second-300",
	}))
	cp := testControlPoint(t, client)
	svc := testService(cp)

	ok := svc.Subscribe(context.Background(), true)
	require.True(t, ok)
	assert.Equal(t, "uuid:sub-1", svc.SubscriptionID())
	assert.Equal(t, 300000, svc.SubscriptionTimeout())
	assert.True(t, svc.IsSubscribed())

	_, held := cp.subscribeHolder.Get("uuid:sub-1")
	assert.True(t, held)
}

func TestService_SubscribeFailureLeavesUnsubscribed(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("SUBSCRIBE", headerResponse(http.StatusInternalServerError, nil))
	cp := testControlPoint(t, client)
	svc := testService(cp)

	ok := svc.Subscribe(context.Background(), true)
	assert.False(t, ok)
	assert.False(t, svc.IsSubscribed())
}

func TestService_SubscribeTwiceRenewsInPlace(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("SUBSCRIBE", headerResponse(http.StatusOK, map[string]string{
		"SID": "uuid:sub-1", "TIMEOUT": "Second-300",
	}))
	client.queue("SUBSCRIBE", headerResponse(http.StatusOK, map[string]string{
		"SID": "uuid:sub-1", "TIMEOUT": "Second-600",
	}))
	cp := testControlPoint(t, client)
	svc := testService(cp)

	require.True(t, svc.Subscribe(context.Background(), true))
	require.True(t, svc.Subscribe(context.Background(), true))
	assert.Equal(t, 600000, svc.SubscriptionTimeout())
	assert.Equal(t, "uuid:sub-1", svc.SubscriptionID())
}

func TestService_UnsubscribeClearsStateEvenOnHTTPFailure(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("SUBSCRIBE", headerResponse(http.StatusOK, map[string]string{
		"SID": "uuid:sub-1", "TIMEOUT": "Second-300",
	}))
	client.queue("UNSUBSCRIBE", headerResponse(http.StatusInternalServerError, nil))
	cp := testControlPoint(t, client)
	svc := testService(cp)

	require.True(t, svc.Subscribe(context.Background(), true))
	ok := svc.Unsubscribe(context.Background())
	assert.False(t, ok)
	assert.False(t, svc.IsSubscribed())
	_, held := cp.subscribeHolder.Get("uuid:sub-1")
	assert.False(t, held)
}

func TestService_AcceptsVariableChecksSendEvents(t *testing.T) {
	cp := testControlPoint(t, newScriptedHTTPClient())
	svc := testService(cp)
	svc.StateVariables = []*StateVariable{
		{Service: svc, Name: "Volume", SendEvents: true},
		{Service: svc, Name: "Muted", SendEvents: false},
	}

	assert.True(t, svc.acceptsVariable("Volume"))
	assert.False(t, svc.acceptsVariable("Muted"))
	assert.False(t, svc.acceptsVariable("Unknown"))
}
