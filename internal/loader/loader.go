// Package loader implements the device loader pipeline of spec.md
// §4.3: UUID lookup, in-flight coalescing, and the download/parse/
// resolve task that turns an SSDP announcement into a fully-linked
// device description.
package loader

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/mm2d/go-upnp/internal/logging"
	"github.com/mm2d/go-upnp/internal/metrics"
	"github.com/mm2d/go-upnp/internal/ssdp"
	"github.com/mm2d/go-upnp/internal/xmlmodel"
)

// Fetcher retrieves a description document over HTTP. The caller (the
// upnp package) supplies the concrete client so this package carries
// no dependency on the public HTTPClient contract.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Publisher is the loader's two callbacks into the owning ControlPoint.
type Publisher interface {
	// UpdateExisting reports whether a Device for uuid is already held,
	// updating its backing announcement in place if so (spec.md §4.3
	// step 1).
	UpdateExisting(uuid string, ann *ssdp.Message) bool
	// Publish delivers a freshly resolved device graph for uuid and the
	// announcement it was loaded under (step 3's success path).
	Publish(ctx context.Context, uuid string, dev *xmlmodel.ResolvedDevice, ann *ssdp.Message)
}

type inflight struct {
	mu     sync.Mutex
	ann    *ssdp.Message
	cancel context.CancelFunc
}

func (f *inflight) update(ann *ssdp.Message) {
	f.mu.Lock()
	f.ann = ann
	f.mu.Unlock()
}

func (f *inflight) snapshot() *ssdp.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ann
}

// Loader runs the device-load pipeline. At most one load per UUID is
// in flight at a time (spec.md §4.3's dedup guarantee).
type Loader struct {
	fetcher   Fetcher
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.Registry

	mu      sync.Mutex
	loading map[string]*inflight

	wg sync.WaitGroup
}

// New builds a Loader.
func New(fetcher Fetcher, publisher Publisher, logger *logging.Logger, reg *metrics.Registry) *Loader {
	return &Loader{
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		metrics:   reg,
		loading:   make(map[string]*inflight),
	}
}

// Handle processes one validated SSDP alive/response announcement.
func (l *Loader) Handle(ctx context.Context, ann *ssdp.Message) {
	uuid := ann.UUID
	if uuid == "" {
		return
	}

	if l.publisher.UpdateExisting(uuid, ann) {
		return
	}

	l.mu.Lock()
	if inf, ok := l.loading[uuid]; ok {
		l.mu.Unlock()
		inf.update(ann)
		return
	}
	loadCtx, cancel := context.WithCancel(ctx)
	inf := &inflight{ann: ann, cancel: cancel}
	l.loading[uuid] = inf
	l.mu.Unlock()

	l.wg.Add(1)
	go l.load(loadCtx, uuid, inf)
}

// Byebye aborts and discards any in-flight load for uuid, spec.md
// scenario S2: "receipt of a NOTIFY byebye with the same USN removes
// that entry and leaves the registry empty." A uuid with no in-flight
// load is a no-op.
func (l *Loader) Byebye(uuid string) {
	l.mu.Lock()
	inf, ok := l.loading[uuid]
	if ok {
		delete(l.loading, uuid)
	}
	l.mu.Unlock()
	if ok {
		inf.cancel()
	}
}

// Wait blocks until every in-flight load task has finished, used by
// ControlPoint stop() to drain the I/O pool briefly before clearing
// the registry.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) load(ctx context.Context, uuid string, inf *inflight) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.loading, uuid)
		l.mu.Unlock()
	}()

	ann := inf.snapshot()

	base, err := url.Parse(ann.Location)
	if err != nil {
		l.logger.Warn("loader: malformed LOCATION", "uuid", uuid, "location", ann.Location, "error", err)
		l.metricsFailure("malformed_location")
		return
	}

	data, err := l.fetcher.Get(ctx, ann.Location)
	if err != nil {
		l.logger.Warn("loader: description download failed", "uuid", uuid, "error", err)
		l.metricsFailure("download")
		return
	}

	devXML, err := xmlmodel.ParseDevice(data)
	if err != nil {
		l.logger.Warn("loader: description parse failed", "uuid", uuid, "error", err)
		l.metricsFailure("parse")
		return
	}

	xmlmodel.ResolveURLs(devXML, base)
	scpdURLs := xmlmodel.CollectSCPDURLs(devXML)

	warn := func(msg string) { l.logger.Warn(msg, "uuid", uuid) }
	resolved, err := xmlmodel.ResolveDeviceWithFetcher(devXML, l.fetchSCPD(ctx, scpdURLs), warn)
	if err != nil {
		l.logger.Warn("loader: description resolution failed", "uuid", uuid, "error", err)
		l.metricsFailure("resolve")
		return
	}

	final := inf.snapshot()
	l.publisher.Publish(ctx, uuid, resolved, final)
	if l.metrics != nil {
		l.metrics.LoaderSuccess.WithLabelValues(final.Interface).Inc()
	}
}

func (l *Loader) metricsFailure(reason string) {
	if l.metrics != nil {
		l.metrics.LoaderFailure.WithLabelValues(reason).Inc()
	}
}

// fetchSCPD builds the (udn, serviceId) -> raw document closure
// xmlmodel.ResolveDeviceWithFetcher drives. A missing or unfetchable
// SCPD URL yields ok=false, so that service resolves with no Actions
// or StateVariables rather than failing the whole load.
func (l *Loader) fetchSCPD(ctx context.Context, urls map[string]string) func(udn, serviceID string) ([]byte, bool) {
	return func(udn, serviceID string) ([]byte, bool) {
		scpdURL, ok := urls[fmt.Sprintf("%s|%s", udn, serviceID)]
		if !ok || scpdURL == "" {
			return nil, false
		}
		data, err := l.fetcher.Get(ctx, scpdURL)
		if err != nil {
			l.logger.Debug("loader: SCPD download failed", "udn", udn, "serviceId", serviceID, "error", err)
			return nil, false
		}
		return data, true
	}
}
