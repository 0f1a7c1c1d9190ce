package upnp

import (
	"context"
	"time"

	"github.com/mm2d/go-upnp/internal/gena"
	"github.com/mm2d/go-upnp/internal/registry"
	"github.com/mm2d/go-upnp/internal/ssdp"
	"github.com/mm2d/go-upnp/internal/subscribe"
)

// AddDiscoveryListener registers l. Registration is idempotent per
// spec.md §8 invariant 6: adding the same listener twice is a no-op.
func (cp *ControlPoint) AddDiscoveryListener(l DiscoveryListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, existing := range cp.discoveryListeners {
		if existing == l {
			return
		}
	}
	cp.discoveryListeners = append(append([]DiscoveryListener{}, cp.discoveryListeners...), l)
}

// RemoveDiscoveryListener unregisters l.
func (cp *ControlPoint) RemoveDiscoveryListener(l DiscoveryListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	next := make([]DiscoveryListener, 0, len(cp.discoveryListeners))
	for _, existing := range cp.discoveryListeners {
		if existing != l {
			next = append(next, existing)
		}
	}
	cp.discoveryListeners = next
}

// AddEventListener registers l for unicast GENA property-change events.
func (cp *ControlPoint) AddEventListener(l EventListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, existing := range cp.eventListeners {
		if existing == l {
			return
		}
	}
	cp.eventListeners = append(append([]EventListener{}, cp.eventListeners...), l)
}

// RemoveEventListener unregisters l.
func (cp *ControlPoint) RemoveEventListener(l EventListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	next := make([]EventListener, 0, len(cp.eventListeners))
	for _, existing := range cp.eventListeners {
		if existing != l {
			next = append(next, existing)
		}
	}
	cp.eventListeners = next
}

// AddNotifyEventListener registers l for multicast eventing.
func (cp *ControlPoint) AddNotifyEventListener(l NotifyEventListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, existing := range cp.notifyListeners {
		if existing == l {
			return
		}
	}
	cp.notifyListeners = append(append([]NotifyEventListener{}, cp.notifyListeners...), l)
}

// RemoveNotifyEventListener unregisters l.
func (cp *ControlPoint) RemoveNotifyEventListener(l NotifyEventListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	next := make([]NotifyEventListener, 0, len(cp.notifyListeners))
	for _, existing := range cp.notifyListeners {
		if existing != l {
			next = append(next, existing)
		}
	}
	cp.notifyListeners = next
}

// AddSubscriptionListener registers l for renewal-failure notifications.
func (cp *ControlPoint) AddSubscriptionListener(l SubscriptionListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, existing := range cp.subExpiryListeners {
		if existing == l {
			return
		}
	}
	cp.subExpiryListeners = append(append([]SubscriptionListener{}, cp.subExpiryListeners...), l)
}

// RemoveSubscriptionListener unregisters l.
func (cp *ControlPoint) RemoveSubscriptionListener(l SubscriptionListener) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	next := make([]SubscriptionListener, 0, len(cp.subExpiryListeners))
	for _, existing := range cp.subExpiryListeners {
		if existing != l {
			next = append(next, existing)
		}
	}
	cp.subExpiryListeners = next
}

func (cp *ControlPoint) fireDiscover(d *Device) {
	cp.mu.RLock()
	ls := cp.discoveryListeners
	cp.mu.RUnlock()
	for _, l := range ls {
		l := l
		cp.callback.Submit(func() { l.OnDiscover(d) })
	}
}

func (cp *ControlPoint) fireLost(d *Device) {
	cp.mu.RLock()
	ls := cp.discoveryListeners
	cp.mu.RUnlock()
	for _, l := range ls {
		l := l
		cp.callback.Submit(func() { l.OnLost(d) })
	}
}

func (cp *ControlPoint) fireNotifyEvent(svc *Service, seq int, name, value string) {
	if cp.metrics != nil {
		cp.metrics.EventsDispatched.WithLabelValues(svc.ServiceID).Inc()
	}
	cp.mu.RLock()
	ls := cp.eventListeners
	cp.mu.RUnlock()
	for _, l := range ls {
		l := l
		cp.callback.Submit(func() { l.OnNotifyEvent(svc, seq, name, value) })
	}
}

func (cp *ControlPoint) fireMulticastEvent(uuid, svcID, lvl string, seq int, props map[string]string) {
	cp.mu.RLock()
	ls := cp.notifyListeners
	cp.mu.RUnlock()
	for _, l := range ls {
		l := l
		cp.callback.Submit(func() { l.OnEvent(uuid, svcID, lvl, seq, props) })
	}
}

func (cp *ControlPoint) fireExpired(svc *Service) {
	cp.mu.RLock()
	ls := cp.subExpiryListeners
	cp.mu.RUnlock()
	for _, l := range ls {
		l := l
		cp.callback.Submit(func() { l.OnExpired(svc) })
	}
}

// onSSDPMessage is the notify/search Listener wired to both ssdp
// receivers: byebye removes from the registry (and aborts any
// in-flight load), alive/update/response feed the loader pipeline. The
// Open Question on NTS ssdp:update is resolved per spec.md's own
// direction: treat it as equivalent to alive.
func (cp *ControlPoint) onSSDPMessage(msg *ssdp.Message) {
	if cp.options.SsdpFilter != nil && !cp.options.SsdpFilter(msg.UUID, msg.Location) {
		return
	}

	if msg.NTS == ssdp.NTSByebye {
		cp.loader.Byebye(msg.UUID)
		if entry, ok := cp.registryHolder.Remove(msg.UUID); ok {
			cp.onDeviceRemoved(entry.(*deviceEntry).device)
		}
		return
	}

	cp.loader.Handle(cp.runCtx, msg)
}

// onDeviceExpired is the registry holder's onExpire callback.
func (cp *ControlPoint) onDeviceExpired(entry registry.Entry) {
	cp.onDeviceRemoved(entry.(*deviceEntry).device)
}

func (cp *ControlPoint) onDeviceRemoved(dev *Device) {
	cp.cascadeUnsubscribe(dev)
	if cp.metrics != nil {
		cp.metrics.DevicesLost.Inc()
		cp.metrics.DevicesActive.Dec()
	}
	cp.fireLost(dev)
}

// cascadeUnsubscribe implements spec.md §8 invariant 3: removing a
// Device causes an UNSUBSCRIBE attempt for every Service (including
// embedded devices' services) holding an active subscription.
func (cp *ControlPoint) cascadeUnsubscribe(dev *Device) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, d := range dev.AllDevices() {
		for _, svc := range d.Services {
			if svc.IsSubscribed() {
				svc.Unsubscribe(ctx)
			}
		}
	}
}

// onRenew is the subscribe holder's Renewer.
func (cp *ControlPoint) onRenew(ctx context.Context, entry subscribe.Entry) (time.Time, bool) {
	svc := entry.(*Service)
	ok := svc.renew(ctx)
	return svc.Expiry(), ok
}

// onSubscriptionExpired is the subscribe holder's ExpiredReporter.
func (cp *ControlPoint) onSubscriptionExpired(entry subscribe.Entry) {
	svc := entry.(*Service)
	svc.clearSubscription()
	if cp.metrics != nil {
		cp.metrics.SubscriptionExpired.Inc()
		cp.metrics.SubscriptionsActive.Dec()
	}
	cp.fireExpired(svc)
}

// lookupSubscription is the GENA event receiver's SubscriptionLookup.
func (cp *ControlPoint) lookupSubscription(sid string) (any, bool) {
	entry, ok := cp.subscribeHolder.Get(sid)
	if !ok {
		return nil, false
	}
	return entry.(*Service), true
}

// acceptProperty is the GENA event receiver's PropertyAccepter.
func (cp *ControlPoint) acceptProperty(ref any, name string) bool {
	svc := ref.(*Service)
	if accepted := svc.acceptsVariable(name); accepted {
		return true
	}
	if cp.metrics != nil {
		cp.metrics.EventsDropped.WithLabelValues("not_subscribed_variable").Inc()
	}
	return false
}

// onNotifyEvent is the GENA event receiver's EventHandler.
func (cp *ControlPoint) onNotifyEvent(ref any, seq int, name, value string) {
	svc := ref.(*Service)
	cp.fireNotifyEvent(svc, seq, name, value)
}

// onMulticastEvent is the GENA multicast receiver's MulticastEventHandler.
func (cp *ControlPoint) onMulticastEvent(uuid, svcID, lvl string, seq int, properties []gena.Property) {
	props := make(map[string]string, len(properties))
	for _, p := range properties {
		props[p.Name] = p.Value
	}
	cp.fireMulticastEvent(uuid, svcID, lvl, seq, props)
}
