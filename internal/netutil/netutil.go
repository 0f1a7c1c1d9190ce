// Package netutil enumerates host network interfaces and answers the
// IPv4 segment-membership question the SSDP receivers need before
// admitting a multicast packet.
package netutil

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Interface describes one usable network interface: its netlink link
// plus the IPv4/IPv6 prefixes currently assigned to it.
type Interface struct {
	Name       string
	Index      int
	IPv4Addrs  []*net.IPNet
	IPv6Addrs  []*net.IPNet
	Multicast  bool
	Up         bool
	NetIface   *net.Interface
}

// Netlinker is the subset of netlink operations netutil depends on.
// Exists so tests can substitute a fake without touching the kernel.
type Netlinker interface {
	LinkList() ([]netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// RealNetlinker calls directly into github.com/vishvananda/netlink.
type RealNetlinker struct{}

func (RealNetlinker) LinkList() ([]netlink.Link, error) { return netlink.LinkList() }

func (RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// Enumerate returns every non-loopback, up, multicast-capable interface
// with its current address set. Matches spec.md §6's default interface
// set: "all non-loopback up interfaces supporting multicast".
func Enumerate(nl Netlinker) ([]Interface, error) {
	links, err := nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netutil: list links: %w", err)
	}

	var out []Interface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil {
			continue
		}
		if attrs.Flags&net.FlagUp == 0 {
			continue
		}
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		if attrs.Flags&net.FlagMulticast == 0 {
			continue
		}

		iface := Interface{
			Name:      attrs.Name,
			Index:     attrs.Index,
			Multicast: true,
			Up:        true,
		}

		if v4, err := nl.AddrList(link, netlink.FAMILY_V4); err == nil {
			for _, a := range v4 {
				if a.IPNet != nil {
					iface.IPv4Addrs = append(iface.IPv4Addrs, a.IPNet)
				}
			}
		}
		if v6, err := nl.AddrList(link, netlink.FAMILY_V6); err == nil {
			for _, a := range v6 {
				if a.IPNet != nil {
					iface.IPv6Addrs = append(iface.IPv6Addrs, a.IPNet)
				}
			}
		}

		if netIface, err := net.InterfaceByIndex(attrs.Index); err == nil {
			iface.NetIface = netIface
		}

		out = append(out, iface)
	}
	return out, nil
}

// InSegment reports whether ip lies within prefix, applying the mask
// byte-wise then bit-wise on the partial byte as spec.md §4.1 step 2
// requires. net.IPNet.Contains already implements exactly that masking,
// so this is a thin, explicitly-named wrapper kept for readability at
// call sites and to pin the semantics spec.md calls out.
func InSegment(prefix *net.IPNet, ip net.IP) bool {
	if prefix == nil || ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return prefix.Contains(v4)
}

// IPv4Prefixes returns the IPv4 prefixes configured on iface.
func (i Interface) IPv4Prefixes() []*net.IPNet {
	return i.IPv4Addrs
}
