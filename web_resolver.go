package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultServiceURL answers over both IPv4 and IPv6.
const DefaultServiceURL = "https://icanhazip.com/"

// WebResolver constructs a resolver which uses external web services to look up a "public" IP address.
//
// Each serviceURL must speak http and return status "200 OK",
// with a valid IPv4 or IPv6 address as the first line of the response body.
// All other responses are considered an error.
//
// The connection for an IPv4 lookup is forced over IPv4 and the connection for an IPv6 lookup over IPv6,
// so a single service that answers on both families reports the right address for each.
// The services are tried in order until one of them answers.
//
// With no serviceURL, DefaultServiceURL is used.
// The recommended approach is to run your own service over https.
func WebResolver(serviceURL ...string) (Resolver, error) {
	if len(serviceURL) == 0 {
		serviceURL = []string{DefaultServiceURL}
	}
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("unsupported scheme in %q", u)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{
		serviceURLs: URLs,
		timeout:     15 * time.Second,
		logger:      logr.Discard(),
	}, nil
}

type webResolver struct {
	// httpClients overrides the per-family clients, mostly for tests.
	httpClients map[Family]*http.Client
	serviceURLs []*url.URL
	timeout     time.Duration
	logger      logr.Logger
}

func (wr *webResolver) SetLogger(logger logr.Logger) { wr.logger = logger }

// SetTimeout bounds each lookup.
func (wr *webResolver) SetTimeout(d time.Duration) {
	if d > 0 {
		wr.timeout = d
	}
}

// SetHTTPClient uses httpclient for every family.
// The client's transport is then responsible for forcing the address family.
func (wr *webResolver) SetHTTPClient(httpclient *http.Client) {
	wr.httpClients = map[Family]*http.Client{IPv4: httpclient, IPv6: httpclient}
}

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context, family Family) (netip.Addr, error) {
	if len(wr.serviceURLs) == 0 {
		return netip.Addr{}, errors.New("no external IP lookup services were provided")
	}
	httpclient := wr.client(family)
	var errs []error
	for _, u := range wr.serviceURLs {
		addr, err := wr.lookup(ctx, httpclient, u, family)
		if err == nil {
			wr.logger.V(1).Info("resolved public address", "family", family.String(), "service", u.Host, "addr", addr.String())
			return addr, nil
		}
		wr.logger.V(1).Info("address lookup failed", "family", family.String(), "service", u.Host, "error", err.Error())
		errs = append(errs, fmt.Errorf("%s: %w", u.Host, err))
		if ctx.Err() != nil {
			break
		}
	}
	return netip.Addr{}, fmt.Errorf("unable to resolve %s address: %w", family, errors.Join(errs...))
}

func (wr *webResolver) client(family Family) *http.Client {
	if c, ok := wr.httpClients[family]; ok && c != nil {
		return c
	}
	return familyClient(family)
}

// familyClient returns a client whose connections are only ever made over the given family.
func familyClient(family Family) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	network := family.Network()
	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Transport: transport}
}

func (wr *webResolver) lookup(ctx context.Context, httpclient *http.Client, url *url.URL, family Family) (netip.Addr, error) {
	// the timeout keeps a hung service from stalling the run even when the caller passed context.Background
	ctx, cancel := context.WithTimeout(ctx, wr.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	scanner := bufio.NewReader(resp.Body)
	ipstring, _ := scanner.ReadString('\n')
	ip, err := netip.ParseAddr(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	ip = ip.Unmap()
	if FamilyOf(ip) != family {
		return netip.Addr{}, fmt.Errorf("expected an %s address; got %s", family, ip)
	}
	return ip, nil
}
