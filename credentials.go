package ddns

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go"
)

// Credentials authenticate against Cloudflare.
//
// There are exactly two kinds: a scoped APIToken and the legacy account-wide GlobalKey.
// Both give the same behaviour everywhere except the headers sent with each request,
// so nothing outside the provider needs to know which one is in use.
type Credentials interface {
	newAPI(opts ...cloudflare.Option) (*cloudflare.API, error)
	verify(ctx context.Context, api *cloudflare.API) (bool, error)
	fmt.Stringer
}

// APIToken is a scoped API token, sent as "Authorization: Bearer".
type APIToken string

func (t APIToken) newAPI(opts ...cloudflare.Option) (*cloudflare.API, error) {
	return cloudflare.NewWithAPIToken(string(t), opts...)
}

func (t APIToken) verify(ctx context.Context, api *cloudflare.API) (bool, error) {
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return false, err
	}
	return result.Status == "active", nil
}

func (t APIToken) String() string { return "APIToken(" + redact(string(t)) + ")" }

// GlobalKey is an account email and global API key, sent as X-Auth-Email and X-Auth-Key.
type GlobalKey struct {
	Email string
	Key   string
}

func (g GlobalKey) newAPI(opts ...cloudflare.Option) (*cloudflare.API, error) {
	return cloudflare.New(g.Key, g.Email, opts...)
}

// Global keys have no verify endpoint; fetching the account's user is the cheapest authenticated call.
func (g GlobalKey) verify(ctx context.Context, api *cloudflare.API) (bool, error) {
	if _, err := api.UserDetails(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (g GlobalKey) String() string { return "GlobalKey(" + g.Email + ", " + redact(g.Key) + ")" }

func redact(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
