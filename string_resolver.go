package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns the given addresses,
// at most one IPv4 and one IPv6.
// Families without an address fail to resolve.
func FromString(addrs ...string) (Resolver, error) {
	r := stringResolver{}
	for _, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("unable to parse IP: %w", err)
		}
		addr = addr.Unmap()
		f := FamilyOf(addr)
		if prev, dup := r[f]; dup {
			return nil, fmt.Errorf("more than one %s address given: %s and %s", f, prev, addr)
		}
		r[f] = addr
	}
	return r, nil
}

type stringResolver map[Family]netip.Addr

func (s stringResolver) Resolve(_ context.Context, family Family) (netip.Addr, error) {
	addr, ok := s[family]
	if !ok {
		return netip.Addr{}, fmt.Errorf("no %s address was given", family)
	}
	return addr, nil
}
