package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-logr/logr"
)

// New constructs a client that keeps the A and AAAA records of names pointed at the host's public addresses.
//
// Names are compared in CanonicalName form and duplicates are dropped.
// A Provider is required, usually through UsingCloudflare.
// Without UsingResolver the client uses WebResolver with DefaultServiceURL,
// and without WithFamilies it manages both IPv4 and IPv6.
func New(names []string, options ...ClientOption) (DDNSClient, error) {
	if len(names) == 0 {
		return nil, &ConfigError{Err: errors.New("ddns.New: at least one name is required")}
	}
	c := &client{
		families: AllFamilies,
		reporter: NopReporter{},
		logger:   logr.Discard(),
		timeout:  30 * time.Second,
	}
	seen := map[string]bool{}
	for _, n := range names {
		if err := ValidName(n); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("ddns.New: %w", err)}
		}
		n = CanonicalName(n)
		if !seen[n] {
			seen[n] = true
			c.names = append(c.names, n)
		}
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("ddns.New: option %d returned an error: %w", i, err)}
		}
	}

	if c.Provider == nil {
		return nil, &ConfigError{Err: errors.New("ddns.New: no DNS provider was registered and there is no default option - use ddns.UsingCloudflare or similar")}
	}
	if c.Resolver == nil {
		wr, err := WebResolver()
		if err != nil {
			return nil, err
		}
		c.Resolver = wr
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	propagateLogger(c)
	propagateHTTPClient(c)
	return c, nil
}

// ClientOption configures New.
type ClientOption func(*client) error

// UsingCloudflare registers Cloudflare as the DNS provider.
func UsingCloudflare(cfg CloudflareConfig) ClientOption {
	return func(c *client) (err error) {
		if c.Provider, err = NewCloudflare(cfg); err != nil {
			return fmt.Errorf("ddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingProvider registers any Provider implementation.
func UsingProvider(p Provider) ClientOption {
	return func(c *client) error {
		if p == nil {
			return errors.New("ddns.UsingProvider: provider is nil")
		}
		c.Provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) ClientOption {
	return func(c *client) error {
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) ClientOption {
	return func(c *client) (err error) {
		c.Resolver, err = WebResolver(serviceURL...)
		return err
	}
}

// WithFamilies limits the address families that are managed.
func WithFamilies(families ...Family) ClientOption {
	return func(c *client) error {
		if len(families) == 0 {
			return errors.New("at least one address family is required")
		}
		for _, f := range families {
			if f != IPv4 && f != IPv6 {
				return fmt.Errorf("unknown address family %s", f)
			}
		}
		// keep AllFamilies order and drop duplicates
		var fs []Family
		for _, want := range AllFamilies {
			for _, f := range families {
				if f == want {
					fs = append(fs, f)
					break
				}
			}
		}
		c.families = fs
		return nil
	}
}

// WithZoneID skips zone discovery and uses the given zone for every name.
// Tokens scoped to a single zone usually cannot list zones, so they need this.
func WithZoneID(zoneID string) ClientOption {
	return func(c *client) error {
		c.zoneID = zoneID
		return nil
	}
}

// WithReporter sends every failure to r as well as the run report.
func WithReporter(r Reporter) ClientOption {
	return func(c *client) error {
		if r == nil {
			r = NopReporter{}
		}
		c.reporter = r
		return nil
	}
}

// WithTimeout bounds the provider calls for each target, and each address lookup.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive; got %s", d)
		}
		c.timeout = d
		return nil
	}
}

func WithLogger(logger logr.Logger) ClientOption {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient makes the provider and the resolver send their requests through httpclient.
// It applies to whichever provider and resolver the client ends up with, regardless of option order.
//
// The web resolver normally forces each lookup over its own address family;
// with a shared client that is left to httpclient's transport.
func UsingHTTPClient(httpclient *http.Client) ClientOption {
	return func(c *client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		return nil
	}
}

func propagateHTTPClient(c *client) {
	if c.httpClient == nil {
		return
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	if r, ok := c.Resolver.(setHTTPClient); ok {
		r.SetHTTPClient(c.httpClient)
	}
	if p, ok := c.Provider.(setHTTPClient); ok {
		p.SetHTTPClient(c.httpClient)
	}
}

func propagateLogger(c *client) {
	if c.logger.GetSink() == nil {
		c.logger = logr.Discard()
	}
	type setLogger interface {
		SetLogger(logr.Logger)
	}
	type setTimeout interface {
		SetTimeout(time.Duration)
	}
	if p, ok := c.Provider.(setLogger); ok {
		p.SetLogger(c.logger.WithName("provider"))
	}
	if r, ok := c.Resolver.(setLogger); ok {
		r.SetLogger(c.logger.WithName("resolver"))
	}
	if r, ok := c.Resolver.(setTimeout); ok {
		r.SetTimeout(c.timeout)
	}
}

type DDNSClient interface {
	// RunDDNS makes one reconciliation pass over every name and family.
	//
	// The report always holds one outcome per target.
	// A non-nil error means the run as a whole failed:
	// no address could be resolved at all, or the provider rejected the credentials.
	// Failures of single targets are only in the report.
	RunDDNS(ctx context.Context) (*RunReport, error)

	// VerifyToken checks the credentials without touching any record.
	VerifyToken(ctx context.Context) (bool, error)
}

type client struct {
	Resolver
	Provider
	reporter Reporter
	logger   logr.Logger
	names    []string
	families []Family
	zoneID   string
	timeout  time.Duration

	httpClient *http.Client
}

// Resolution is the outcome of resolving one family.
type Resolution struct {
	Addr netip.Addr
	Err  error
}

// Addresses maps each requested family to its resolution.
type Addresses map[Family]Resolution

// ResolveAll resolves every family independently;
// one family failing has no effect on the others.
func ResolveAll(ctx context.Context, r Resolver, families []Family) Addresses {
	addrs := make(Addresses, len(families))
	for _, f := range families {
		addr, err := r.Resolve(ctx, f)
		if err == nil && FamilyOf(addr) != f {
			err = fmt.Errorf("resolver returned %q for %s", addr, f)
		}
		if err != nil {
			addrs[f] = Resolution{Err: err}
			continue
		}
		addrs[f] = Resolution{Addr: addr}
	}
	return addrs
}

// Any reports whether at least one family resolved.
func (a Addresses) Any() bool {
	for _, r := range a {
		if r.Addr.IsValid() {
			return true
		}
	}
	return false
}

// Err joins the errors of the families that failed.
func (a Addresses) Err() error {
	var errs []error
	for _, f := range AllFamilies {
		if r, ok := a[f]; ok && r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func (c *client) targets() []Target {
	var ts []Target
	for _, n := range c.names {
		for _, f := range c.families {
			ts = append(ts, Target{Name: n, Family: f})
		}
	}
	return ts
}

// RunDDNS implements ddns.DDNSClient.
func (c *client) RunDDNS(ctx context.Context) (*RunReport, error) {
	report := &RunReport{Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	addrs := ResolveAll(ctx, c.Resolver, c.families)
	for _, f := range c.families {
		if r := addrs[f]; r.Err != nil {
			c.logger.Info("unable to resolve public address", "family", f.String(), "error", r.Err.Error())
		} else {
			c.logger.V(1).Info("got public address", "family", f.String(), "addr", r.Addr.String())
		}
	}

	targets := c.targets()
	if !addrs.Any() {
		err := fmt.Errorf("%w: %w", ErrNoAddress, addrs.Err())
		for _, t := range targets {
			report.add(Outcome{Target: t, Result: Skipped, Reason: ErrNoAddress.Error(), Err: addrs[t.Family].Err})
		}
		c.logger.Error(err, "no public address could be resolved")
		c.reporter.Report(Event{Err: err})
		return report, err
	}

	r := &run{client: c}
	for i, t := range targets {
		o := r.reconcile(ctx, t, addrs[t.Family])
		report.add(o)
		c.logOutcome(o)
		if o.Result != Failed {
			continue
		}
		target := t
		c.reporter.Report(Event{Target: &target, Err: o.Err})
		if IsAuth(o.Err) {
			for _, rest := range targets[i+1:] {
				report.add(Outcome{Target: rest, Result: Skipped, Desired: addrs[rest.Family].Addr, Reason: "run aborted", Err: o.Err})
			}
			return report, o.Err
		}
	}
	return report, nil
}

// VerifyToken implements ddns.DDNSClient.
func (c *client) VerifyToken(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.Provider.VerifyToken(ctx)
	if err != nil {
		c.reporter.Report(Event{Err: err})
		return false, err
	}
	c.logger.Info("verified credentials", "valid", ok)
	return ok, nil
}

func (c *client) logOutcome(o Outcome) {
	kv := []any{"name", o.Target.Name, "type", o.Target.Family.RecordType()}
	if o.Desired.IsValid() {
		kv = append(kv, "addr", o.Desired.String())
	}
	switch o.Result {
	case Failed:
		c.logger.Error(o.Err, "unable to update record", kv...)
	case Skipped:
		c.logger.Info("record skipped", append(kv, "reason", o.Reason)...)
	case Updated:
		c.logger.Info("record updated", append(kv, "previous", o.Previous)...)
	default:
		c.logger.Info("record "+o.Result.String(), kv...)
	}
}

// run holds what one RunDDNS pass may remember between targets: the zone list, and nothing else.
type run struct {
	*client
	zones  []Zone
	listed bool
}

func (r *run) zoneFor(ctx context.Context, name string) (Zone, error) {
	if r.zoneID != "" {
		return Zone{ID: r.zoneID}, nil
	}
	if !r.listed {
		zones, err := r.ListZones(ctx)
		if err != nil {
			return Zone{}, err
		}
		r.zones, r.listed = zones, true
	}
	zone, err := FindZoneForName(r.zones, name)
	if err != nil {
		return Zone{}, err
	}
	r.logger.V(1).Info("got zone", "name", name, "zone", zone.Name, "zoneID", zone.ID)
	return zone, nil
}

func (r *run) reconcile(ctx context.Context, t Target, desired Resolution) Outcome {
	o := Outcome{Target: t, Desired: desired.Addr}
	if !desired.Addr.IsValid() {
		o.Result, o.Reason, o.Err = Skipped, ErrNoAddress.Error(), desired.Err
		return o
	}
	fail := func(err error) Outcome {
		o.Result, o.Err = Failed, err
		return o
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	zone, err := r.zoneFor(ctx, t.Name)
	if err != nil {
		return fail(fmt.Errorf("unable to get zone for %s: %w", t.Name, err))
	}
	records, err := r.ListRecords(ctx, zone, t.Name, t.Family)
	if err != nil {
		return fail(err)
	}

	switch len(records) {
	case 0:
		if _, err := r.CreateRecord(ctx, zone, t.Name, t.Family, desired.Addr); err != nil {
			return fail(err)
		}
		o.Result = Created
	case 1:
		existing := records[0]
		o.Previous = existing.Content
		if current, ok := existing.Addr(); ok && current == desired.Addr {
			o.Result = Unchanged
			return o
		}
		if _, err := r.UpdateRecord(ctx, existing, desired.Addr); err != nil {
			return fail(err)
		}
		o.Result = Updated
	default:
		return fail(fmt.Errorf("%w: %d %s records for %s", ErrAmbiguousRecordSet, len(records), t.Family.RecordType(), t.Name))
	}
	return o
}
