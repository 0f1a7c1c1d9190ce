package upnp

import (
	"context"
	"sync"
	"time"

	"github.com/mm2d/go-upnp/internal/gena"
)

// Service is a functional interface on a Device: a control URL to
// invoke Actions on, an event subscription URL, and the subscription
// state described in spec.md §3 — SID, start time, timeout, expiry,
// and the keep-renew flag, all zeroed while unsubscribed.
type Service struct {
	Device         *Device
	ServiceType    string
	ServiceID      string
	SCPDURL        string
	ControlURL     string
	EventSubURL    string
	Actions        []*Action
	StateVariables []*StateVariable

	cp *ControlPoint

	mu             sync.Mutex
	sid            string
	start          time.Time
	timeoutSeconds int
	expiry         time.Time
	keepRenew      bool
}

// FindAction returns the Action with the given name, or nil.
func (s *Service) FindAction(name string) *Action {
	for _, a := range s.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// FindStateVariable returns the StateVariable with the given name, or nil.
func (s *Service) FindStateVariable(name string) *StateVariable {
	for _, v := range s.StateVariables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// SID satisfies internal/subscribe.Entry; empty when unsubscribed.
func (s *Service) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// Expiry satisfies internal/subscribe.Entry.
func (s *Service) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// KeepRenew satisfies internal/subscribe.Entry.
func (s *Service) KeepRenew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepRenew
}

// SubscriptionID returns the current SID, or "" if unsubscribed.
func (s *Service) SubscriptionID() string { return s.SID() }

// SubscriptionTimeout returns the current subscription timeout in
// milliseconds, per spec.md §8's "subscriptionTimeout == 300000" form.
func (s *Service) SubscriptionTimeout() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutSeconds * 1000
}

// IsSubscribed reports whether this Service currently holds an active
// subscription.
func (s *Service) IsSubscribed() bool {
	return s.SID() != ""
}

func (s *Service) client() gena.HTTPClient {
	return &genaHTTPClient{client: s.cp.httpClient()}
}

// Subscribe issues SUBSCRIBE, or renews in place if already Active,
// per spec.md §4.5. Returns success as the synchronous API contract
// requires.
func (s *Service) Subscribe(ctx context.Context, keepRenew bool) bool {
	s.mu.Lock()
	active := s.sid != ""
	s.mu.Unlock()

	if active {
		s.setKeepRenew(keepRenew)
		return s.renew(ctx)
	}

	callback := gena.CallbackURL(s.cp.localIP(s.Device), s.cp.eventPort())
	sid, timeout, err := gena.Subscribe(ctx, s.client(), s.EventSubURL, callback, gena.DefaultTimeoutSeconds)
	if err != nil {
		s.cp.logger.Warn("upnp: subscribe failed", "service", s.ServiceID, "error", err)
		s.cp.metricsSubscribeAttempt(false)
		return false
	}

	now := s.cp.clock.Now()
	s.mu.Lock()
	s.sid = sid
	s.start = now
	s.timeoutSeconds = timeout
	s.expiry = now.Add(time.Duration(timeout) * time.Second)
	s.keepRenew = keepRenew
	s.mu.Unlock()

	s.cp.subscribeHolder.Add(s)
	s.cp.metricsSubscribeAttempt(true)
	return true
}

func (s *Service) setKeepRenew(keepRenew bool) {
	s.mu.Lock()
	s.keepRenew = keepRenew
	s.mu.Unlock()
}

// renew re-issues SUBSCRIBE with the existing SID. Also the Renewer
// the subscribe holder's renewal thread drives.
func (s *Service) renew(ctx context.Context) bool {
	s.mu.Lock()
	sid := s.sid
	timeoutSeconds := s.timeoutSeconds
	s.mu.Unlock()
	if sid == "" {
		return false
	}

	timeout, err := gena.Renew(ctx, s.client(), s.EventSubURL, sid, timeoutSeconds)
	if err != nil {
		s.cp.logger.Warn("upnp: renew failed", "service", s.ServiceID, "sid", sid, "error", err)
		s.cp.metricsRenewal(false)
		return false
	}

	now := s.cp.clock.Now()
	s.mu.Lock()
	s.timeoutSeconds = timeout
	s.expiry = now.Add(time.Duration(timeout) * time.Second)
	s.mu.Unlock()
	s.cp.metricsRenewal(true)
	return true
}

// Unsubscribe issues UNSUBSCRIBE, clears subscription state, and
// removes this Service from the subscribe holder. Best-effort: state
// is cleared even if the HTTP call fails.
func (s *Service) Unsubscribe(ctx context.Context) bool {
	s.mu.Lock()
	sid := s.sid
	s.mu.Unlock()
	if sid == "" {
		return true
	}

	err := gena.Unsubscribe(ctx, s.client(), s.EventSubURL, sid)
	s.clearSubscription()
	s.cp.subscribeHolder.Remove(sid)
	if err != nil {
		s.cp.logger.Warn("upnp: unsubscribe failed", "service", s.ServiceID, "sid", sid, "error", err)
		return false
	}
	return true
}

func (s *Service) clearSubscription() {
	s.mu.Lock()
	s.sid = ""
	s.start = time.Time{}
	s.timeoutSeconds = 0
	s.expiry = time.Time{}
	s.keepRenew = false
	s.mu.Unlock()
}

// acceptsVariable reports whether name is a sendEvents=true
// StateVariable of this Service, spec.md §4.6's dispatch filter.
func (s *Service) acceptsVariable(name string) bool {
	v := s.FindStateVariable(name)
	return v != nil && v.SendEvents
}
