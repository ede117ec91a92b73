package ddns

import (
	"errors"
	"fmt"
)

var (
	// ErrNoZone means no zone in the account contains the name.
	ErrNoZone = errors.New("no zone matches name")
	// ErrAmbiguousZone means more than one zone is an equally good match for the name.
	ErrAmbiguousZone = errors.New("ambiguous zone")
	// ErrAmbiguousRecordSet means the provider returned more than one record for a name and family.
	ErrAmbiguousRecordSet = errors.New("ambiguous record set")
	// ErrNoAddress means the address for a family could not be resolved.
	ErrNoAddress = errors.New("no address for family")
)

// ConfigError is a missing or conflicting option, detected before anything runs.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Configf returns a *ConfigError with a formatted message.
func Configf(format string, a ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, a...)}
}

// AuthError means the provider rejected the credentials.
// No target can make progress after one.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the provider throttled the request.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// TransportError is a network failure or timeout talking to the provider.
// The next scheduled run is the retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is a request the provider refused, e.g. an invalid name or a missing permission.
type ProviderError struct {
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return "provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsAuth reports whether err is, or wraps, an *AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
