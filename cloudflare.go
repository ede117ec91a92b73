package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultComment is attached to every record this package creates.
const DefaultComment = "managed by ddns"

// CloudflareConfig configures NewCloudflare.
type CloudflareConfig struct {
	Credentials Credentials

	// TTL for new records. 1 means automatic. Zero defaults to 60.
	TTL int
	// Proxied sets the proxy flag on new records.
	Proxied bool
	// Comment for new records. Empty defaults to DefaultComment.
	Comment string

	// BaseURL overrides the API endpoint.
	BaseURL string
	// Timeout bounds each API request. Zero defaults to 15 seconds.
	Timeout time.Duration
}

// NewCloudflare constructs a Provider for the Cloudflare v4 API.
//
// The client library's own retry loop is turned off:
// a failed call fails the target and the next scheduled run tries again.
func NewCloudflare(cfg CloudflareConfig) (*CloudflareProvider, error) {
	if cfg.Credentials == nil {
		return nil, &ConfigError{Err: errors.New("cloudflare: no credentials")}
	}
	if cfg.TTL == 0 {
		cfg.TTL = 60
	}
	if cfg.Comment == "" {
		cfg.Comment = DefaultComment
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpclient := cleanhttp.DefaultPooledClient()
	httpclient.Timeout = cfg.Timeout
	opts := []cloudflare.Option{
		cloudflare.HTTPClient(httpclient),
		cloudflare.UsingRetryPolicy(0, 0, 0),
		cloudflare.UserAgent("cfddns"),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cloudflare.BaseURL(cfg.BaseURL))
	}

	api, err := cfg.Credentials.newAPI(opts...)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("error creating cloudflare api client: %w", err)}
	}
	return &CloudflareProvider{
		api:     api,
		creds:   cfg.Credentials,
		logger:  logr.Discard(),
		ttl:     cfg.TTL,
		proxied: cfg.Proxied,
		comment: cfg.Comment,
	}, nil
}

// CloudflareProvider implements ddns.Provider.
//
// It should be constructed using NewCloudflare.
type CloudflareProvider struct {
	api     *cloudflare.API
	creds   Credentials
	logger  logr.Logger
	ttl     int
	proxied bool
	comment string
}

func (cf *CloudflareProvider) SetLogger(logger logr.Logger) { cf.logger = logger }

func (cf *CloudflareProvider) SetHTTPClient(httpclient *http.Client) {
	_ = cloudflare.HTTPClient(httpclient)(cf.api)
}

// ListZones implements ddns.Provider.
func (cf *CloudflareProvider) ListZones(ctx context.Context) ([]Zone, error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing zones: %w", classify(err))
	}
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, Zone{ID: z.ID, Name: CanonicalName(z.Name)})
	}
	cf.logger.V(1).Info("listed zones", "count", len(out))
	return out, nil
}

// ListRecords implements ddns.Provider.
//
// The API filters by name and type already;
// the results are checked again here so that a difference in case or a trailing dot can never turn an update into a create.
func (cf *CloudflareProvider) ListRecords(ctx context.Context, zone Zone, name string, family Family) ([]Record, error) {
	name = CanonicalName(name)
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zone.ID), cloudflare.ListDNSRecordsParams{
		Type: family.RecordType(),
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing %s records for %s: %w", family.RecordType(), name, classify(err))
	}
	var out []Record
	for _, r := range records {
		if r.Type != family.RecordType() || CanonicalName(r.Name) != name {
			continue
		}
		out = append(out, Record{
			ID:      r.ID,
			ZoneID:  zone.ID,
			Name:    CanonicalName(r.Name),
			Family:  family,
			Content: r.Content,
			TTL:     r.TTL,
			Proxied: r.Proxied != nil && *r.Proxied,
		})
	}
	cf.logger.V(1).Info("listed records", "name", name, "type", family.RecordType(), "count", len(out))
	return out, nil
}

// CreateRecord implements ddns.Provider.
func (cf *CloudflareProvider) CreateRecord(ctx context.Context, zone Zone, name string, family Family, value netip.Addr) (Record, error) {
	name = CanonicalName(name)
	if FamilyOf(value) != family {
		return Record{}, fmt.Errorf("cannot create %s record for %s with %s", family.RecordType(), name, value)
	}
	proxied := cf.proxied
	created, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zone.ID), cloudflare.CreateDNSRecordParams{
		Type:    family.RecordType(),
		Name:    name,
		Content: value.String(),
		ZoneID:  zone.ID,
		TTL:     cf.ttl,
		Proxied: &proxied,
		Comment: cf.comment,
	})
	if err != nil {
		return Record{}, fmt.Errorf("error creating %s record for %s: %w", family.RecordType(), name, classify(err))
	}
	return Record{
		ID:      created.ID,
		ZoneID:  zone.ID,
		Name:    name,
		Family:  family,
		Content: value.String(),
		TTL:     cf.ttl,
		Proxied: proxied,
		Comment: cf.comment,
	}, nil
}

// UpdateRecord implements ddns.Provider.
// Only the content changes; TTL, proxy status, comment and tags stay as they were.
// The API clears comment and tags when they are left out of an update, so they are always sent back.
func (cf *CloudflareProvider) UpdateRecord(ctx context.Context, existing Record, value netip.Addr) (Record, error) {
	if FamilyOf(value) != existing.Family {
		return Record{}, fmt.Errorf("cannot set %s record %s to %s", existing.Family.RecordType(), existing.Name, value)
	}
	proxied := existing.Proxied
	_, err := cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(existing.ZoneID), cloudflare.UpdateDNSRecordParams{
		ID:      existing.ID,
		Type:    existing.Family.RecordType(),
		Name:    existing.Name,
		Content: value.String(),
		TTL:     existing.TTL,
		Proxied: &proxied,
		Comment: existing.Comment,
		Tags:    existing.Tags,
	})
	if err != nil {
		return Record{}, fmt.Errorf("error updating record %s: %w", existing.ID, classify(err))
	}
	updated := existing
	updated.Content = value.String()
	return updated, nil
}

// VerifyToken implements ddns.Provider.
//
// Rejected credentials return false with a nil error.
// An error means the question could not be answered, e.g. the API was unreachable.
func (cf *CloudflareProvider) VerifyToken(ctx context.Context) (bool, error) {
	ok, err := cf.creds.verify(ctx, cf.api)
	if err == nil {
		return ok, nil
	}
	err = classify(err)
	var pe *ProviderError
	if IsAuth(err) || errors.As(err, &pe) {
		cf.logger.Info("credentials rejected", "credentials", cf.creds.String(), "reason", err.Error())
		return false, nil
	}
	return false, fmt.Errorf("unable to verify credentials: %w", err)
}

// classify maps a cloudflare-go error onto this package's error types.
//
// A 401 means the credentials themselves were rejected and becomes an AuthError.
// A 403 means the credentials lack access to one resource, e.g. a token scoped to other zones;
// it stays a ProviderError so that only the affected target fails.
// A 5xx is a transient failure of the API and becomes a TransportError.
func classify(err error) error {
	var (
		authz     *cloudflare.AuthorizationError
		service   *cloudflare.ServiceError
		ratelimit *cloudflare.RatelimitError
		urlErr    *url.Error
		netErr    net.Error
		coded     interface {
			ErrorCodes() []int
			ErrorMessages() []string
		}
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &authz):
		return &AuthError{Err: err}
	case errors.As(err, &ratelimit), strings.Contains(err.Error(), "rate limit"):
		return &RateLimitError{Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &urlErr), errors.As(err, &netErr),
		errors.As(err, &service), strings.Contains(err.Error(), "HTTP request failed"),
		strings.Contains(err.Error(), "please try again later"):
		return &TransportError{Err: err}
	case errors.As(err, &coded):
		pe := &ProviderError{Message: err.Error(), Err: err}
		if codes := coded.ErrorCodes(); len(codes) > 0 {
			pe.Code = codes[0]
		}
		if msgs := coded.ErrorMessages(); len(msgs) > 0 {
			pe.Message = strings.Join(msgs, "; ")
		}
		return pe
	}
	return &ProviderError{Message: err.Error(), Err: err}
}
