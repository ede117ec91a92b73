package ddns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// CanonicalName is the form every name is compared in:
// lower case with no trailing dot.
// "Home.Example.COM." and "home.example.com" are the same name.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(dns.CanonicalName(name), ".")
}

// FindZoneForName picks the zone that name belongs to.
//
// Matching is by whole labels,
// so "otherdomain.tld" is not in the zone "domain.tld".
// The longest matching zone wins.
// If no zone matches the error wraps ErrNoZone,
// and if two zones with the same name match the error wraps ErrAmbiguousZone.
func FindZoneForName(zones []Zone, name string) (Zone, error) {
	fqdn := dns.Fqdn(CanonicalName(name))
	var (
		best    Zone
		labels  = -1
		matches int
	)
	for _, z := range zones {
		zfqdn := dns.Fqdn(CanonicalName(z.Name))
		if zfqdn == "." || !dns.IsSubDomain(zfqdn, fqdn) {
			continue
		}
		n := dns.CountLabel(zfqdn)
		switch {
		case n > labels:
			best, labels, matches = z, n, 1
		case n == labels:
			matches++
		}
	}
	if matches == 0 {
		return Zone{}, fmt.Errorf("%w: %q", ErrNoZone, CanonicalName(name))
	}
	if matches > 1 {
		return Zone{}, fmt.Errorf("%w: %d zones named %q match %q", ErrAmbiguousZone, matches, CanonicalName(best.Name), CanonicalName(name))
	}
	return best, nil
}

// ValidName reports whether name can be managed as a record:
// at least two labels, each a valid DNS label.
func ValidName(name string) error {
	name = CanonicalName(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if !strings.Contains(name, ".") {
		return fmt.Errorf("name %q must have at least one dot", name)
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return fmt.Errorf("name %q is not a valid domain name", name)
	}
	return nil
}
