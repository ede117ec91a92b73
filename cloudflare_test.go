package ddns_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	ddns "github.com/Travis-Britz/cfddns"
)

type cfRecord struct {
	ID      string `json:"id"`
	ZoneID  string `json:"zone_id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied *bool  `json:"proxied,omitempty"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// fakeCloudflare serves the small part of the v4 API the provider uses.
// Record listing ignores the name and type filters so that client-side filtering is exercised.
type fakeCloudflare struct {
	t        *testing.T
	mu       sync.Mutex
	zones    map[string]string // id to name
	records  []cfRecord
	nextID   int
	token    string
	email    string
	key      string
	status   string
	requests []string

	forbidden   map[string]bool // zone ids whose records the credentials may not read
	unavailable bool
}

func newFakeCloudflare(t *testing.T) (*fakeCloudflare, *httptest.Server) {
	f := &fakeCloudflare{t: t, zones: map[string]string{}, token: "test-token", status: "active"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCloudflare) authorized(r *http.Request) bool {
	if f.email != "" {
		return r.Header.Get("X-Auth-Email") == f.email && r.Header.Get("X-Auth-Key") == f.key
	}
	return r.Header.Get("Authorization") == "Bearer "+f.token
}

func writeResult(w http.ResponseWriter, result any, count int) {
	body := map[string]any{
		"success":  true,
		"errors":   []any{},
		"messages": []any{},
		"result":   result,
	}
	if count >= 0 {
		body["result_info"] = map[string]int{"page": 1, "per_page": 100, "count": count, "total_count": count, "total_pages": 1}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"errors":[{"code":%d,"message":%q}],"messages":[],"result":null}`, code, msg)
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.unavailable {
		writeError(w, http.StatusServiceUnavailable, 0, "service unavailable")
		return
	}
	if !f.authorized(r) {
		writeError(w, http.StatusUnauthorized, 10000, "Authentication error")
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "zones" && f.forbidden[parts[1]]:
		writeError(w, http.StatusForbidden, 9109, "Unauthorized to access requested resource")
	case r.URL.Path == "/user/tokens/verify":
		writeResult(w, map[string]string{"id": "tok-id", "status": f.status}, -1)
	case r.URL.Path == "/user":
		writeResult(w, map[string]string{"id": "user-id", "email": f.email}, -1)
	case r.URL.Path == "/zones" && r.Method == http.MethodGet:
		var zones []map[string]string
		for id, name := range f.zones {
			zones = append(zones, map[string]string{"id": id, "name": name})
		}
		writeResult(w, zones, len(zones))
	case len(parts) == 3 && parts[0] == "zones" && parts[2] == "dns_records":
		f.records3(w, r, parts[1])
	case len(parts) == 4 && parts[0] == "zones" && parts[2] == "dns_records":
		f.record(w, r, parts[1], parts[3])
	default:
		writeError(w, http.StatusNotFound, 7003, "no route for "+r.URL.Path)
	}
}

func (f *fakeCloudflare) records3(w http.ResponseWriter, r *http.Request, zoneID string) {
	switch r.Method {
	case http.MethodGet:
		out := []cfRecord{}
		for _, rec := range f.records {
			if rec.ZoneID == zoneID {
				out = append(out, rec)
			}
		}
		writeResult(w, out, len(out))
	case http.MethodPost:
		var rec cfRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeError(w, http.StatusBadRequest, 9000, err.Error())
			return
		}
		f.nextID++
		rec.ID = fmt.Sprintf("created-%d", f.nextID)
		rec.ZoneID = zoneID
		f.records = append(f.records, rec)
		writeResult(w, rec, -1)
	default:
		writeError(w, http.StatusMethodNotAllowed, 9000, "method not allowed")
	}
}

func (f *fakeCloudflare) record(w http.ResponseWriter, r *http.Request, zoneID, id string) {
	for i, rec := range f.records {
		if rec.ZoneID != zoneID || rec.ID != id {
			continue
		}
		switch r.Method {
		case http.MethodGet:
			writeResult(w, rec, -1)
		case http.MethodPatch, http.MethodPut:
			// comment and tags are cleared when sent empty, like the real API
			var upd struct {
				cfRecord
				Comment *string   `json:"comment"`
				Tags    *[]string `json:"tags"`
			}
			if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
				writeError(w, http.StatusBadRequest, 9000, err.Error())
				return
			}
			if upd.Content != "" {
				f.records[i].Content = upd.Content
			}
			if upd.TTL != 0 {
				f.records[i].TTL = upd.TTL
			}
			if upd.Proxied != nil {
				f.records[i].Proxied = upd.Proxied
			}
			if upd.Comment != nil {
				f.records[i].Comment = *upd.Comment
			}
			if upd.Tags != nil {
				f.records[i].Tags = *upd.Tags
			}
			writeResult(w, f.records[i], -1)
		default:
			writeError(w, http.StatusMethodNotAllowed, 9000, "method not allowed")
		}
		return
	}
	writeError(w, http.StatusNotFound, 81044, "Record does not exist.")
}

func (f *fakeCloudflare) find(name, typ string) []cfRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cfRecord
	for _, rec := range f.records {
		if rec.Name == name && rec.Type == typ {
			out = append(out, rec)
		}
	}
	return out
}

func cloudflareClient(t *testing.T, srv *httptest.Server, creds ddns.Credentials, names ...string) ddns.DDNSClient {
	t.Helper()
	return newClient(t, names,
		ddns.UsingCloudflare(ddns.CloudflareConfig{Credentials: creds, BaseURL: srv.URL}),
		ddns.UsingResolver(staticResolver(t, "203.0.113.9")),
		ddns.WithFamilies(ddns.IPv4),
	)
}

func TestCloudflareRun(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	f.zones["z1"] = "example.com"
	f.zones["z2"] = "example.org"
	proxied := true
	f.records = []cfRecord{
		{ID: "r1", ZoneID: "z1", Type: "A", Name: "home.example.com", Content: "203.0.113.5", TTL: 300, Proxied: &proxied,
			Comment: "office router", Tags: []string{"site:office"}},
		{ID: "r2", ZoneID: "z1", Type: "AAAA", Name: "home.example.com", Content: "2001:db8::5", TTL: 300},
		{ID: "r3", ZoneID: "z1", Type: "A", Name: "homeX.example.com", Content: "203.0.113.5", TTL: 300},
		{ID: "r4", ZoneID: "z2", Type: "A", Name: "same.example.org", Content: "203.0.113.9", TTL: 300},
	}

	c := cloudflareClient(t, srv, ddns.APIToken("test-token"), "home.example.com", "new.example.com", "same.example.org")
	report, err := c.RunDDNS(context.Background())
	if err != nil {
		t.Fatalf("RunDDNS failed: %s", err)
	}
	want := []string{"home.example.com A updated", "new.example.com A created", "same.example.org A unchanged"}
	if diff := cmp.Diff(want, results(report)); diff != "" {
		t.Fatalf("(-want +got):\n%s (%v)", diff, report.Err())
	}

	home := f.find("home.example.com", "A")
	if len(home) != 1 || home[0].Content != "203.0.113.9" || home[0].TTL != 300 || home[0].Proxied == nil || !*home[0].Proxied {
		t.Errorf("Expected home.example.com A 203.0.113.9 ttl 300 proxied; got %+v", home)
	}
	if len(home) == 1 && (home[0].Comment != "office router" || !cmp.Equal(home[0].Tags, []string{"site:office"})) {
		t.Errorf("Expected the comment and tags to survive an update; got %q %v", home[0].Comment, home[0].Tags)
	}
	if other := f.find("homeX.example.com", "A"); other[0].Content != "203.0.113.5" {
		t.Errorf("A record of a different name was modified: %+v", other)
	}
	created := f.find("new.example.com", "A")
	if len(created) != 1 {
		t.Fatalf("Expected one new record; got %+v", created)
	}
	if created[0].ZoneID != "z1" || created[0].TTL != 60 || created[0].Comment != ddns.DefaultComment {
		t.Errorf("Expected new record in z1 with ttl 60 and the default comment; got %+v", created[0])
	}
	if created[0].Proxied == nil || *created[0].Proxied {
		t.Errorf("Expected new record to be explicitly unproxied; got %v", created[0].Proxied)
	}
}

func TestCloudflareRejectedToken(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	f.zones["z1"] = "example.com"

	c := cloudflareClient(t, srv, ddns.APIToken("wrong"), "a.example.com", "b.example.com")
	ok, err := c.VerifyToken(context.Background())
	if err != nil {
		t.Fatalf("VerifyToken failed: %s", err)
	}
	if ok {
		t.Fatalf("Expected the token to be rejected")
	}

	report, err := c.RunDDNS(context.Background())
	if !ddns.IsAuth(err) {
		t.Fatalf("Expected an auth error; got %v", err)
	}
	want := []string{"a.example.com A failed", "b.example.com A skipped"}
	if diff := cmp.Diff(want, results(report)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestCloudflareForbiddenZone(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	f.zones["z1"] = "example.com"
	f.zones["z2"] = "example.org"
	f.forbidden = map[string]bool{"z1": true}

	c := cloudflareClient(t, srv, ddns.APIToken("test-token"), "a.example.com", "b.example.org")
	report, err := c.RunDDNS(context.Background())
	if err != nil {
		t.Fatalf("A token scoped to other zones must not abort the run; got %v", err)
	}
	want := []string{"a.example.com A failed", "b.example.org A created"}
	if diff := cmp.Diff(want, results(report)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	var pe *ddns.ProviderError
	if !errors.As(report.Outcomes[0].Err, &pe) || pe.Code != 9109 {
		t.Errorf("Expected a ProviderError with code 9109; got %v", report.Outcomes[0].Err)
	}
	if ddns.IsAuth(report.Outcomes[0].Err) {
		t.Errorf("A 403 must not be an auth error: %v", report.Outcomes[0].Err)
	}
}

func TestCloudflareUnavailable(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	f.unavailable = true

	p, err := ddns.NewCloudflare(ddns.CloudflareConfig{Credentials: ddns.APIToken("test-token"), BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := p.VerifyToken(context.Background()); err == nil || ok {
		t.Fatalf("Expected a 503 to be an error, not a verdict; got %t, %v", ok, err)
	}
	_, err = p.ListZones(context.Background())
	var te *ddns.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected a TransportError; got %v", err)
	}
}

func TestCloudflareVerifyToken(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	p, err := ddns.NewCloudflare(ddns.CloudflareConfig{Credentials: ddns.APIToken("test-token"), BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := p.VerifyToken(context.Background()); err != nil || !ok {
		t.Fatalf("Expected an active token; got %t, %v", ok, err)
	}
	f.mu.Lock()
	f.status = "disabled"
	f.mu.Unlock()
	if ok, err := p.VerifyToken(context.Background()); err != nil || ok {
		t.Fatalf("Expected a disabled token to be invalid; got %t, %v", ok, err)
	}
	for _, req := range f.requests {
		if strings.Contains(req, "dns_records") {
			t.Errorf("VerifyToken touched records: %s", req)
		}
	}
}

func TestCloudflareGlobalKey(t *testing.T) {
	f, srv := newFakeCloudflare(t)
	f.email, f.key = "user@example.com", "0123456789abcdef"
	f.zones["z1"] = "example.com"

	p, err := ddns.NewCloudflare(ddns.CloudflareConfig{
		Credentials: ddns.GlobalKey{Email: f.email, Key: f.key},
		BaseURL:     srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := p.VerifyToken(context.Background())
	if err != nil || !ok {
		t.Fatalf("Expected the key to be valid; got %t, %v", ok, err)
	}
	zones, err := p.ListZones(context.Background())
	if err != nil {
		t.Fatalf("ListZones failed: %s", err)
	}
	if diff := cmp.Diff([]ddns.Zone{{ID: "z1", Name: "example.com"}}, zones); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCloudflareUnreachable(t *testing.T) {
	_, srv := newFakeCloudflare(t)
	url := srv.URL
	srv.Close()

	p, err := ddns.NewCloudflare(ddns.CloudflareConfig{Credentials: ddns.APIToken("test-token"), BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.ListZones(context.Background())
	var te *ddns.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected a TransportError; got %v", err)
	}
	if ok, err := p.VerifyToken(context.Background()); err == nil || ok {
		t.Fatalf("Expected an unreachable API to be an error, not a verdict; got %t, %v", ok, err)
	}
}

func TestCredentialsAreRedacted(t *testing.T) {
	for _, c := range []ddns.Credentials{ddns.APIToken("supersecrettoken"), ddns.GlobalKey{Email: "user@example.com", Key: "supersecretkey"}} {
		if s := c.String(); strings.Contains(s, "supersecret") {
			t.Errorf("%s leaks the secret", s)
		}
	}
}
