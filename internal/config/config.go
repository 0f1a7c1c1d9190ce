// Package config is the optional, file-backed way to build a
// upnp.Options described in SPEC_FULL.md §3.3: HCL by default, JSON as
// a fallback, mirroring the teacher's LoadFile dispatch-by-extension.
// upnp.NewControlPoint never requires this package — it only saves a
// hosting application from hand-assembling Options in Go.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/mm2d/go-upnp/upnp"
)

// FileConfig is the on-disk shape, either HCL or JSON. It carries only
// the fields spec.md §6's Options exposes as scalar/slice values — an
// IconFilter or SsdpFilter can't be expressed in a config file and
// must be set programmatically after LoadFile returns.
type FileConfig struct {
	// Interfaces lists interface names to bind, by net.Interface.Name.
	// Empty means every eligible interface (matches Options' zero value).
	Interfaces []string `hcl:"interfaces,optional" json:"interfaces,omitempty"`

	// Protocol is one of "dual" (default), "ipv4", or "ipv6".
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`

	// NotifySegmentCheck mirrors Options.NotifySegmentCheck.
	NotifySegmentCheck bool `hcl:"notify_segment_check,optional" json:"notify_segment_check,omitempty"`
}

// LoadFile reads path and decodes it into Options, dispatching on file
// extension: ".hcl" decodes as HCL, ".json" as JSON, anything else
// tries HCL first and falls back to JSON on parse failure.
func LoadFile(path string) (upnp.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return upnp.Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".hcl":
		err = hclsimple.Decode(path, data, nil, &fc)
	default:
		if hclErr := hclsimple.Decode(path, data, nil, &fc); hclErr != nil {
			err = json.Unmarshal(data, &fc)
		}
	}
	if err != nil {
		return upnp.Options{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return fc.toOptions()
}

func (fc FileConfig) toOptions() (upnp.Options, error) {
	opts := upnp.DefaultOptions()
	opts.NotifySegmentCheck = fc.NotifySegmentCheck

	switch strings.ToLower(fc.Protocol) {
	case "", "dual", "dualstack":
		opts.Protocol = upnp.DualStack
	case "ipv4":
		opts.Protocol = upnp.IPv4Only
	case "ipv6":
		opts.Protocol = upnp.IPv6Only
	default:
		return upnp.Options{}, fmt.Errorf("config: unknown protocol %q", fc.Protocol)
	}

	for _, name := range fc.Interfaces {
		ifc, err := net.InterfaceByName(name)
		if err != nil {
			return upnp.Options{}, fmt.Errorf("config: interface %q: %w", name, err)
		}
		opts.Interfaces = append(opts.Interfaces, ifc)
	}

	return opts, nil
}
