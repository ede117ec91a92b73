// Package alert sends run failures to Sentry.
package alert

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	ddns "github.com/Travis-Britz/cfddns"
)

// Sentry implements ddns.Reporter.
// Events are queued by the Sentry client; call Flush before the process exits.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry constructs a reporter for dsn.
func NewSentry(dsn string, opts sentry.ClientOptions) (*Sentry, error) {
	opts.Dsn = dsn
	if opts.ServerName == "" {
		opts.ServerName = "cfddns"
	}
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error creating sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report implements ddns.Reporter.
func (s *Sentry) Report(ev ddns.Event) {
	if ev.Err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		if ev.Target != nil {
			scope.SetTag("name", ev.Target.Name)
			scope.SetTag("family", ev.Target.Family.String())
			scope.SetTag("record_type", ev.Target.Family.RecordType())
		} else {
			scope.SetTag("scope", "run")
		}
		scope.SetTag("kind", kind(ev.Err))
		s.hub.CaptureException(ev.Err)
	})
}

// Flush waits up to timeout for queued events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
