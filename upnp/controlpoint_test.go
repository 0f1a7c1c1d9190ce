package upnp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlPoint_SearchBeforeStartIsInvalidState(t *testing.T) {
	cp := NewControlPoint(DefaultOptions())
	err := cp.Search("ssdp:all")
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidState))
}

func TestControlPoint_GetDeviceAndDevices(t *testing.T) {
	cp := testControlPoint(t, newScriptedHTTPClient())
	dev := &Device{UDN: "uuid:root"}
	dev.setAnnouncement("http://192.0.2.5:80/desc.xml", "", "", cp.clock.Now().Add(time.Hour))
	cp.registryHolder.Add(&deviceEntry{device: dev})

	got, ok := cp.GetDevice("uuid:root")
	require.True(t, ok)
	assert.Same(t, dev, got)

	all := cp.Devices()
	require.Len(t, all, 1)
	assert.Same(t, dev, all[0])

	_, ok = cp.GetDevice("uuid:missing")
	assert.False(t, ok)
}

type recordingDiscoveryListener struct {
	discovered []*Device
	lost       []*Device
}

func (l *recordingDiscoveryListener) OnDiscover(d *Device) { l.discovered = append(l.discovered, d) }
func (l *recordingDiscoveryListener) OnLost(d *Device)     { l.lost = append(l.lost, d) }

// spec.md §8 invariant 6: adding the same listener twice then removing
// once leaves zero invocations.
func TestControlPoint_DiscoveryListenerAddIsIdempotent(t *testing.T) {
	cp := testControlPoint(t, newScriptedHTTPClient())
	l := &recordingDiscoveryListener{}

	cp.AddDiscoveryListener(l)
	cp.AddDiscoveryListener(l)
	assert.Len(t, cp.discoveryListeners, 1)

	cp.RemoveDiscoveryListener(l)
	assert.Len(t, cp.discoveryListeners, 0)
}

func TestControlPoint_DiscoveryListenerFiresOnPublishAndRemoval(t *testing.T) {
	cp := testControlPoint(t, newScriptedHTTPClient())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cp.callback.Start(ctx)
	t.Cleanup(cp.callback.Stop)

	l := &recordingDiscoveryListener{}
	cp.AddDiscoveryListener(l)

	dev := &Device{UDN: "uuid:root"}
	cp.fireDiscover(dev)
	cp.fireLost(dev)

	require.Eventually(t, func() bool {
		return len(l.discovered) == 1 && len(l.lost) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Same(t, dev, l.discovered[0])
	assert.Same(t, dev, l.lost[0])
}

func TestControlPoint_CascadeUnsubscribeCoversEmbeddedDevices(t *testing.T) {
	client := newScriptedHTTPClient()
	client.queue("UNSUBSCRIBE", headerResponse(200, nil))
	client.queue("UNSUBSCRIBE", headerResponse(200, nil))
	cp := testControlPoint(t, client)

	root := &Device{UDN: "uuid:root"}
	child := &Device{UDN: "uuid:child", Parent: root}
	root.Children = []*Device{child}

	rootSvc := &Service{Device: root, ServiceID: "svc:root", EventSubURL: "http://x/evt", cp: cp}
	childSvc := &Service{Device: child, ServiceID: "svc:child", EventSubURL: "http://x/evt", cp: cp}
	root.Services = []*Service{rootSvc}
	child.Services = []*Service{childSvc}

	future := cp.clock.Now().Add(time.Hour)
	rootSvc.sid, rootSvc.expiry = "sid-root", future
	childSvc.sid, childSvc.expiry = "sid-child", future

	cp.cascadeUnsubscribe(root)

	assert.False(t, rootSvc.IsSubscribed())
	assert.False(t, childSvc.IsSubscribed())
}
