package upnp

import (
	"sync"
	"time"
)

// Icon is one entry of a Device's iconList; Binary is populated only
// for icons the configured IconFilter selected for download.
type Icon struct {
	Device   *Device
	Mimetype string
	Width    int
	Height   int
	Depth    int
	URL      string
	Binary   []byte
}

// Device is a discovered UPnP device, the root of its Services and any
// embedded child Devices.
type Device struct {
	Parent          *Device
	DeviceType      string
	FriendlyName    string
	Manufacturer    string
	ModelName       string
	UDN             string
	PresentationURL string
	Icons           []*Icon
	Services        []*Service
	Children        []*Device

	mu        sync.Mutex
	location  string
	server    string
	ifaceName string
	expiry    time.Time
}

// Expiry reports the time this Device's SSDP announcement lapses.
func (d *Device) Expiry() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expiry
}

func (d *Device) setAnnouncement(location, server, ifaceName string, expiry time.Time) {
	d.mu.Lock()
	d.location = location
	d.server = server
	d.ifaceName = ifaceName
	d.expiry = expiry
	d.mu.Unlock()
}

// Location returns the LOCATION URL this Device was last announced
// with.
func (d *Device) Location() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// FindService returns the Service with the given serviceId, searching
// this Device only (not its children).
func (d *Device) FindService(serviceID string) *Service {
	for _, s := range d.Services {
		if s.ServiceID == serviceID {
			return s
		}
	}
	return nil
}

// AllDevices returns d and every descendant, depth-first.
func (d *Device) AllDevices() []*Device {
	out := []*Device{d}
	for _, c := range d.Children {
		out = append(out, c.AllDevices()...)
	}
	return out
}
