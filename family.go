package ddns

import (
	"fmt"
	"net/netip"
	"strings"
)

// Family is an IP address family.
type Family uint8

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

// AllFamilies lists every supported family in the order targets are processed.
var AllFamilies = []Family{IPv4, IPv6}

// FamilyOf returns the family of addr, or 0 for the zero Addr.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case addr.Is4():
		return IPv4
	case addr.Is6():
		return IPv6
	}
	return 0
}

// ParseFamily accepts "ipv4", "4", "a", "ipv6", "6" and "aaaa", case-insensitively.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "4", "a", "inet":
		return IPv4, nil
	case "ipv6", "6", "aaaa", "inet6":
		return IPv6, nil
	}
	return 0, fmt.Errorf("unknown address family %q", s)
}

// RecordType is the DNS record type that holds addresses of this family.
func (f Family) RecordType() string {
	switch f {
	case IPv4:
		return "A"
	case IPv6:
		return "AAAA"
	}
	panic("unknown ip configuration")
}

// Network is the dial network that forces a connection over this family.
func (f Family) Network() string {
	switch f {
	case IPv4:
		return "tcp4"
	case IPv6:
		return "tcp6"
	}
	panic("unknown ip configuration")
}

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}
