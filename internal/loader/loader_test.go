package loader

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/ssdp"
	"github.com/mm2d/go-upnp/internal/xmlmodel"
)

const deviceDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>Test Renderer</friendlyName>
    <UDN>uuid:4d696e64-6473-6f75-702d-746573740002</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <SCPDURL>/scpd/rc.xml</SCPDURL>
        <controlURL>/ctl/rc</controlURL>
        <eventSubURL>/evt/rc</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`

const scpdDescription = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>SetVolume</name>
      <argumentList>
        <argument>
          <name>DesiredVolume</name>
          <direction>in</direction>
          <relatedStateVariable>Volume</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="yes">
      <name>Volume</name>
      <dataType>ui2</dataType>
    </stateVariable>
  </serviceStateTable>
</scpd>`

type fakeFetcher struct {
	byURL map[string][]byte
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.byURL[url]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	existing  map[string]bool
	published map[string]*xmlmodel.ResolvedDevice
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{existing: map[string]bool{}, published: map[string]*xmlmodel.ResolvedDevice{}}
}

func (p *fakePublisher) UpdateExisting(uuid string, ann *ssdp.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existing[uuid]
}

func (p *fakePublisher) Publish(ctx context.Context, uuid string, dev *xmlmodel.ResolvedDevice, ann *ssdp.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[uuid] = dev
}

func testLogger() *logging.Logger {
	return logging.New(logging.DefaultConfig())
}

func TestLoader_NewDeviceLoadsAndPublishes(t *testing.T) {
	fetcher := &fakeFetcher{byURL: map[string][]byte{
		"http://192.0.2.5:80/desc.xml": []byte(deviceDescription),
		"http://192.0.2.5:80/scpd/rc.xml": []byte(scpdDescription),
	}}
	pub := newFakePublisher()
	l := New(fetcher, pub, testLogger(), nil)

	ann := &ssdp.Message{UUID: "abc-123", Location: "http://192.0.2.5:80/desc.xml"}
	l.Handle(context.Background(), ann)
	l.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	dev, ok := pub.published["abc-123"]
	require.True(t, ok)
	assert.Equal(t, "Test Renderer", dev.FriendlyName)
	require.Len(t, dev.Services, 1)
	assert.Equal(t, "http://192.0.2.5:80/ctl/rc", dev.Services[0].ControlURL)
	require.Len(t, dev.Services[0].Actions, 1)
	assert.Equal(t, "SetVolume", dev.Services[0].Actions[0].Name)
}

func TestLoader_ExistingUUIDUpdatesInPlaceAndSkipsLoad(t *testing.T) {
	fetcher := &fakeFetcher{byURL: map[string][]byte{}}
	pub := newFakePublisher()
	pub.existing["abc-123"] = true
	l := New(fetcher, pub, testLogger(), nil)

	ann := &ssdp.Message{UUID: "abc-123", Location: "http://192.0.2.5:80/desc.xml"}
	l.Handle(context.Background(), ann)
	l.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	_, published := pub.published["abc-123"]
	assert.False(t, published, "an already-held device must not trigger a fresh load")
}

func TestLoader_InFlightCoalescesSecondAnnouncement(t *testing.T) {
	block := make(chan struct{})
	fetcher := &blockingFetcher{
		byURL: map[string][]byte{
			"http://192.0.2.5:80/scpd/rc.xml": []byte(scpdDescription),
		},
		descURL: "http://192.0.2.5:80/desc.xml",
		desc:    []byte(deviceDescription),
		block:   block,
	}
	pub := newFakePublisher()
	l := New(fetcher, pub, testLogger(), nil)

	ann1 := &ssdp.Message{UUID: "abc-123", Location: "http://192.0.2.5:80/desc.xml", Server: "first"}
	l.Handle(context.Background(), ann1)

	// Wait until the in-flight load has registered, then send a second
	// announcement that must coalesce rather than start a parallel load.
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		_, ok := l.loading["abc-123"]
		return ok
	}, time.Second, time.Millisecond)

	ann2 := &ssdp.Message{UUID: "abc-123", Location: "http://192.0.2.5:80/desc.xml", Server: "second"}
	l.Handle(context.Background(), ann2)

	close(block)
	l.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	dev, ok := pub.published["abc-123"]
	require.True(t, ok)
	assert.NotNil(t, dev)
}

type blockingFetcher struct {
	byURL   map[string][]byte
	descURL string
	desc    []byte
	block   chan struct{}
	fetched bool
	mu      sync.Mutex
}

func (f *blockingFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if url == f.descURL {
		f.mu.Lock()
		already := f.fetched
		f.fetched = true
		f.mu.Unlock()
		if !already {
			<-f.block
		}
		return f.desc, nil
	}
	if strings.Contains(url, "scpd") {
		data, ok := f.byURL[url]
		if !ok {
			return nil, assert.AnError
		}
		return data, nil
	}
	return nil, assert.AnError
}
