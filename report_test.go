package ddns_test

import (
	"bytes"
	"errors"
	"net/netip"
	"strings"
	"testing"

	ddns "github.com/Travis-Britz/cfddns"
)

func TestRunReport(t *testing.T) {
	report := &ddns.RunReport{Outcomes: []ddns.Outcome{
		{Target: ddns.Target{Name: "a.example.com", Family: ddns.IPv4}, Result: ddns.Created, Desired: netip.MustParseAddr("203.0.113.9")},
		{Target: ddns.Target{Name: "a.example.com", Family: ddns.IPv6}, Result: ddns.Skipped, Reason: "no address for family"},
		{Target: ddns.Target{Name: "b.example.com", Family: ddns.IPv4}, Result: ddns.Updated, Desired: netip.MustParseAddr("203.0.113.9"), Previous: "203.0.113.5"},
		{Target: ddns.Target{Name: "c.example.com", Family: ddns.IPv4}, Result: ddns.Failed, Desired: netip.MustParseAddr("203.0.113.9"), Err: ddns.ErrAmbiguousRecordSet},
	}}

	if report.OK() {
		t.Errorf("Expected OK() == false")
	}
	if got := report.Count(ddns.Skipped); got != 1 {
		t.Errorf("Expected 1 skipped; got %d", got)
	}
	err := report.Err()
	if !errors.Is(err, ddns.ErrAmbiguousRecordSet) || !strings.Contains(err.Error(), "c.example.com A") {
		t.Errorf("Expected the failure to name its target; got %v", err)
	}

	var buf bytes.Buffer
	report.WriteTable(&buf)
	out := buf.String()
	for _, want := range []string{"NAME", "RESULT", "a.example.com", "AAAA", "skipped", "was 203.0.113.5", "ambiguous record set"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q:\n%s", want, out)
		}
	}
}

func TestResultString(t *testing.T) {
	if ddns.Unchanged.String() != "unchanged" || ddns.Failed.String() != "failed" {
		t.Errorf("unexpected result names")
	}
	if got := ddns.Result(42).String(); got != "Result(42)" {
		t.Errorf("Expected Result(42); got %s", got)
	}
}
