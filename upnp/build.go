package upnp

import (
	"context"
	"time"

	"github.com/mm2d/go-upnp/internal/registry"
	"github.com/mm2d/go-upnp/internal/ssdp"
	"github.com/mm2d/go-upnp/internal/xmlmodel"
)

// deviceEntry adapts *Device to internal/registry.Entry. Device itself
// exposes UDN as a public field, so the method registry.Entry requires
// lives on this thin wrapper instead of colliding with the field.
type deviceEntry struct {
	device *Device
}

func (e *deviceEntry) UDN() string       { return e.device.UDN }
func (e *deviceEntry) Expiry() time.Time { return e.device.Expiry() }

var _ registry.Entry = (*deviceEntry)(nil)

// UpdateExisting implements loader.Publisher: step 1 of spec.md §4.3's
// pipeline.
func (cp *ControlPoint) UpdateExisting(uuid string, ann *ssdp.Message) bool {
	entry, ok := cp.registryHolder.Get(uuid)
	if !ok {
		return false
	}
	de := entry.(*deviceEntry)
	de.device.setAnnouncement(ann.Location, ann.Server, ann.Interface, cp.clock.Now().Add(time.Duration(ann.MaxAge)*time.Second))
	return true
}

// Publish implements loader.Publisher: step 3's success path. Builds
// the pointer-linked Device graph from the arena-style resolved
// result, downloads any icons the configured IconFilter selects, adds
// the Device to the registry, and fires discovery listeners.
func (cp *ControlPoint) Publish(ctx context.Context, uuid string, resolved *xmlmodel.ResolvedDevice, ann *ssdp.Message) {
	dev := buildDevice(resolved, nil, cp)
	dev.setAnnouncement(ann.Location, ann.Server, ann.Interface, cp.clock.Now().Add(time.Duration(ann.MaxAge)*time.Second))

	cp.downloadIcons(ctx, dev)

	cp.registryHolder.Add(&deviceEntry{device: dev})
	if cp.metrics != nil {
		cp.metrics.DevicesDiscovered.Inc()
		cp.metrics.DevicesActive.Inc()
	}
	cp.fireDiscover(dev)
}

// buildDevice performs the second half of spec.md §9's resolution
// design: the arena's index-based Argument->StateVariable links are
// already resolved by internal/xmlmodel; this pass links Service->
// Device and Action->Service by ordinary Go pointers now that the
// whole graph is known-consistent.
func buildDevice(r *xmlmodel.ResolvedDevice, parent *Device, cp *ControlPoint) *Device {
	dev := &Device{
		Parent:          parent,
		DeviceType:      r.DeviceType,
		FriendlyName:    r.FriendlyName,
		Manufacturer:    r.Manufacturer,
		ModelName:       r.ModelName,
		UDN:             r.UDN,
		PresentationURL: r.PresentationURL,
	}

	for _, ic := range r.Icons {
		dev.Icons = append(dev.Icons, &Icon{
			Device:   dev,
			Mimetype: ic.Mimetype,
			Width:    ic.Width,
			Height:   ic.Height,
			Depth:    ic.Depth,
			URL:      ic.URL,
		})
	}

	for _, sr := range r.Services {
		svc := &Service{
			Device:      dev,
			ServiceType: sr.ServiceType,
			ServiceID:   sr.ServiceID,
			SCPDURL:     sr.SCPDURL,
			ControlURL:  sr.ControlURL,
			EventSubURL: sr.EventSubURL,
			cp:          cp,
		}

		for _, svr := range sr.StateVariables {
			svc.StateVariables = append(svc.StateVariables, &StateVariable{
				Service:      svc,
				Name:         svr.Name,
				DataType:     svr.DataType,
				DefaultValue: svr.DefaultValue,
				AllowedValue: svr.AllowedValue,
				Minimum:      svr.Minimum,
				Maximum:      svr.Maximum,
				Step:         svr.Step,
				SendEvents:   svr.SendEvents,
			})
		}

		for _, ar := range sr.Actions {
			act := &Action{Service: svc, Name: ar.Name}
			for _, argR := range ar.Arguments {
				var sv *StateVariable
				if argR.StateVariableIndex >= 0 && argR.StateVariableIndex < len(svc.StateVariables) {
					sv = svc.StateVariables[argR.StateVariableIndex]
				}
				act.Arguments = append(act.Arguments, &Argument{
					Action:        act,
					Name:          argR.Name,
					Direction:     argR.Direction,
					StateVariable: sv,
				})
			}
			svc.Actions = append(svc.Actions, act)
		}

		dev.Services = append(dev.Services, svc)
	}

	for _, cr := range r.Children {
		dev.Children = append(dev.Children, buildDevice(cr, dev, cp))
	}

	return dev
}

// downloadIcons applies the configured IconFilter (default: none) and
// fetches the binary of every selected icon.
func (cp *ControlPoint) downloadIcons(ctx context.Context, dev *Device) {
	if cp.options.IconFilter == nil {
		return
	}
	for _, d := range dev.AllDevices() {
		if len(d.Icons) == 0 {
			continue
		}
		metas := make([]IconMeta, len(d.Icons))
		for i, ic := range d.Icons {
			metas[i] = IconMeta{Mimetype: ic.Mimetype, Width: ic.Width, Height: ic.Height, Depth: ic.Depth, URL: ic.URL}
		}
		selected := cp.options.IconFilter(metas)
		for _, sel := range selected {
			for _, ic := range d.Icons {
				if ic.URL != sel.URL {
					continue
				}
				data, err := cp.options.HTTPClient.Get(ctx, ic.URL)
				if err != nil {
					cp.logger.Warn("upnp: icon download failed", "url", ic.URL, "error", err)
					continue
				}
				ic.Binary = data
			}
		}
	}
}
