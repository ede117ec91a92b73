package ddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the public address of the host for a single address family.
type Resolver interface {
	Resolve(ctx context.Context, family Family) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(ctx context.Context, family Family) (netip.Addr, error)

// Resolve implements ddns.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, family Family) (netip.Addr, error) {
	return f(ctx, family)
}

// Provider is the zone and record API of a DNS provider.
//
// Every call is independent and may fail on its own.
// UpdateRecord always mutates; deciding whether an update is needed is the caller's job.
type Provider interface {
	ListZones(ctx context.Context) ([]Zone, error)
	ListRecords(ctx context.Context, zone Zone, name string, family Family) ([]Record, error)
	CreateRecord(ctx context.Context, zone Zone, name string, family Family, value netip.Addr) (Record, error)
	UpdateRecord(ctx context.Context, existing Record, value netip.Addr) (Record, error)
	VerifyToken(ctx context.Context) (bool, error)
}

// Reporter receives failures as they happen.
// Reports are fire-and-forget and a Reporter must not block the run.
type Reporter interface {
	Report(Event)
}

// Event describes a failure worth alerting on.
// Target is nil for run-level failures.
type Event struct {
	Target *Target
	Err    error
}

// NopReporter discards every event.
type NopReporter struct{}

// Report implements ddns.Reporter.
func (NopReporter) Report(Event) {}

// Zone is a DNS zone at the provider.
type Zone struct {
	ID   string
	Name string
}

// Record is an existing A or AAAA record.
type Record struct {
	ID      string
	ZoneID  string
	Name    string
	Family  Family
	Content string
	TTL     int
	Proxied bool
	Comment string
	Tags    []string
}

// Addr parses the record content.
// Records whose content is not an address of the record's family return ok == false.
func (r Record) Addr() (addr netip.Addr, ok bool) {
	a, err := netip.ParseAddr(r.Content)
	if err != nil {
		return netip.Addr{}, false
	}
	a = a.Unmap()
	if FamilyOf(a) != r.Family {
		return netip.Addr{}, false
	}
	return a, true
}

// Target is a single name and address family to keep updated.
type Target struct {
	Name   string
	Family Family
}

func (t Target) String() string {
	return t.Name + " " + t.Family.RecordType()
}
