package alert

import (
	"errors"

	ddns "github.com/Travis-Britz/cfddns"
)

// kind names the error class so alerts can be grouped and rate-limit noise told apart from real breakage.
func kind(err error) string {
	var (
		auth  *ddns.AuthError
		rate  *ddns.RateLimitError
		trans *ddns.TransportError
		prov  *ddns.ProviderError
		conf  *ddns.ConfigError
	)
	switch {
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &rate):
		return "rate_limit"
	case errors.As(err, &trans):
		return "transport"
	case errors.Is(err, ddns.ErrNoZone), errors.Is(err, ddns.ErrAmbiguousZone):
		return "zone"
	case errors.Is(err, ddns.ErrAmbiguousRecordSet):
		return "ambiguous_records"
	case errors.Is(err, ddns.ErrNoAddress):
		return "no_address"
	case errors.As(err, &prov):
		return "provider"
	case errors.As(err, &conf):
		return "config"
	}
	return "unknown"
}
