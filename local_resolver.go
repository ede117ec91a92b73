package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns an address assigned to one of the given interfaces.
// If no interfaces are provided then all interfaces will be used.
//
// Only public addresses count: loopback, link-local and private (RFC 1918, ULA) addresses are skipped.
// It is meant for hosts that hold their public address directly, which is common for IPv6.
func InterfaceResolver(iface ...string) Resolver {
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(_ context.Context, family Family) (netip.Addr, error) {
	addrs, err := r.addrs()
	if addr, ok := pickAddr(addrs, family); ok {
		return addr, nil
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("no public %s address found: %w", family, err)
	}
	return netip.Addr{}, fmt.Errorf("no public %s address found", family)
}

func (r interfaceResolver) addrs() ([]net.Addr, error) {
	if len(r.ifaces) == 0 {
		adds, err := net.InterfaceAddrs()
		if err != nil {
			return nil, fmt.Errorf("error getting addresses for interface: %w", err)
		}
		return adds, nil
	}
	var (
		all  []net.Addr
		errs []error
	)
	for _, ifs := range r.ifaces {
		iface, err := net.InterfaceByName(ifs)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", ifs, err))
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", ifs, err))
			continue
		}
		all = append(all, a...)
	}
	return all, errors.Join(errs...)
}

// pickAddr returns the first public address of the family.
//
// addr: ip+net:192.168.86.253/24
// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func pickAddr(addrs []net.Addr, family Family) (netip.Addr, bool) {
	for _, addr := range addrs {
		p, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := p.Addr().Unmap()
		if FamilyOf(ip) != family || !ip.IsGlobalUnicast() || ip.IsPrivate() {
			continue
		}
		return ip, true
	}
	return netip.Addr{}, false
}
