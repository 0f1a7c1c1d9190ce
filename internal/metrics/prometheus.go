package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all ControlPoint metrics.
type Registry struct {
	DevicesDiscovered prometheus.Counter
	DevicesLost       prometheus.Counter
	DevicesActive     prometheus.Gauge

	LoaderSuccess *prometheus.CounterVec
	LoaderFailure *prometheus.CounterVec

	SubscriptionsActive    prometheus.Gauge
	SubscriptionAttempts   *prometheus.CounterVec
	SubscriptionRenewals   *prometheus.CounterVec
	SubscriptionExpired    prometheus.Counter

	SSDPMessagesReceived *prometheus.CounterVec
	SSDPMessagesDropped  *prometheus.CounterVec

	EventsDispatched *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.DevicesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_devices_discovered_total",
		Help: "Total devices that completed a successful load and were published",
	})

	r.DevicesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_devices_lost_total",
		Help: "Total devices removed from the registry (byebye, expiry, or stop)",
	})

	r.DevicesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upnp_devices_active",
		Help: "Devices currently present in the registry",
	})

	r.LoaderSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_loader_success_total",
		Help: "Device description loads that completed successfully",
	}, []string{"interface"})

	r.LoaderFailure = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_loader_failure_total",
		Help: "Device description loads that failed",
	}, []string{"reason"})

	r.SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upnp_subscriptions_active",
		Help: "Services with a live GENA subscription",
	})

	r.SubscriptionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_subscription_attempts_total",
		Help: "SUBSCRIBE attempts by outcome",
	}, []string{"outcome"})

	r.SubscriptionRenewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_subscription_renewals_total",
		Help: "RENEW attempts by outcome",
	}, []string{"outcome"})

	r.SubscriptionExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_subscription_expired_total",
		Help: "Subscriptions marked expired after a failed renewal",
	})

	r.SSDPMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_ssdp_messages_received_total",
		Help: "SSDP datagrams accepted past validation, by NTS/method",
	}, []string{"kind"})

	r.SSDPMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_ssdp_messages_dropped_total",
		Help: "SSDP datagrams dropped, by reason",
	}, []string{"reason"})

	r.EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_events_dispatched_total",
		Help: "GENA property updates dispatched to listeners",
	}, []string{"service"})

	r.EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upnp_events_dropped_total",
		Help: "GENA property updates dropped, by reason",
	}, []string{"reason"})

	return r
}
