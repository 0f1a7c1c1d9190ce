package subscribe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mm2d/go-upnp/internal/clock"
)

type fakeService struct {
	mu        sync.Mutex
	sid       string
	expiry    time.Time
	keepRenew bool
}

func (s *fakeService) SID() string { return s.sid }
func (s *fakeService) KeepRenew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepRenew
}
func (s *fakeService) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}
func (s *fakeService) setExpiry(t time.Time) {
	s.mu.Lock()
	s.expiry = t
	s.mu.Unlock()
}

func TestHolder_AddGetRemove(t *testing.T) {
	h := NewHolder(nil, nil, nil, nil)
	svc := &fakeService{sid: "sid-1", expiry: time.Now().Add(time.Hour)}
	h.Add(svc)

	got, ok := h.Get("sid-1")
	require.True(t, ok)
	assert.Equal(t, svc, got)

	removed, ok := h.Remove("sid-1")
	require.True(t, ok)
	assert.Equal(t, svc, removed)
	assert.Equal(t, 0, h.Size())
}

func TestHolder_RenewalSucceedsAndKeepsSubscription(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	svc := &fakeService{sid: "sid-1", expiry: mock.Now().Add(300 * time.Second), keepRenew: true}

	renewed := make(chan struct{}, 1)
	h := NewHolder(func(ctx context.Context, e Entry) (time.Time, bool) {
		newExpiry := mock.Now().Add(300 * time.Second)
		svc.setExpiry(newExpiry)
		renewed <- struct{}{}
		return newExpiry, true
	}, nil, mock, nil)

	h.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	// Advance to start+290s: inside the 10s safety margin before expiry.
	mock.Advance(290 * time.Second)
	h.notifier.Notify()

	select {
	case <-renewed:
	case <-time.After(2 * time.Second):
		t.Fatal("renewal never fired")
	}

	_, ok := h.Get("sid-1")
	assert.True(t, ok, "service should remain held after a successful renewal")
}

func TestHolder_RenewalFailureExpiresAndReports(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	svc := &fakeService{sid: "sid-1", expiry: mock.Now().Add(300 * time.Second), keepRenew: true}

	expired := make(chan Entry, 1)
	h := NewHolder(func(ctx context.Context, e Entry) (time.Time, bool) {
		return time.Time{}, false
	}, func(e Entry) {
		expired <- e
	}, mock, nil)

	h.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	mock.Advance(290 * time.Second)
	h.notifier.Notify()

	select {
	case e := <-expired:
		assert.Equal(t, "sid-1", e.SID())
	case <-time.After(2 * time.Second):
		t.Fatal("expiry report never fired")
	}

	_, ok := h.Get("sid-1")
	assert.False(t, ok)
}

func TestHolder_KeepRenewFalseDroppedSilently(t *testing.T) {
	mock := clock.NewMockClock(time.Now())
	svc := &fakeService{sid: "sid-1", expiry: mock.Now().Add(300 * time.Second), keepRenew: false}

	called := false
	h := NewHolder(func(ctx context.Context, e Entry) (time.Time, bool) {
		called = true
		return time.Time{}, true
	}, nil, mock, nil)

	h.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	mock.Advance(290 * time.Second)
	h.notifier.Notify()

	require.Eventually(t, func() bool {
		_, ok := h.Get("sid-1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, called, "renew should not be invoked when keep_renew is false")
}
