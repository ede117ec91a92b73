package ddns

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Result is what happened to a single target.
type Result int

const (
	Unchanged Result = iota
	Created
	Updated
	Skipped
	Failed
)

var resultNames = [...]string{
	Unchanged: "unchanged",
	Created:   "created",
	Updated:   "updated",
	Skipped:   "skipped",
	Failed:    "failed",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

// Outcome is the result for one target.
type Outcome struct {
	Target Target
	Result Result
	// Desired is the resolved address, invalid when the family did not resolve.
	Desired netip.Addr
	// Previous is the record content before an update.
	Previous string
	// Reason explains a Skipped result.
	Reason string
	// Err is set for Failed results, and for Skipped results caused by an error.
	Err error
}

// RunReport is the result of one RunDDNS pass, one Outcome per target in processing order.
type RunReport struct {
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

func (r *RunReport) add(o Outcome) { r.Outcomes = append(r.Outcomes, o) }

// Failed returns the outcomes with a Failed result.
func (r *RunReport) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Result == Failed {
			failed = append(failed, o)
		}
	}
	return failed
}

// OK reports whether no target failed.
func (r *RunReport) OK() bool { return len(r.Failed()) == 0 }

// Count returns the number of outcomes with the given result.
func (r *RunReport) Count(result Result) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == result {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed targets, or returns nil.
func (r *RunReport) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", o.Target, o.Err))
	}
	return errors.Join(errs...)
}

// WriteTable renders the report as a table.
func (r *RunReport) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Type", "Result", "Address", "Detail"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
	table.SetAutoWrapText(false)
	for _, o := range r.Outcomes {
		addr := ""
		if o.Desired.IsValid() {
			addr = o.Desired.String()
		}
		table.Append([]string{o.Target.Name, o.Target.Family.RecordType(), o.Result.String(), addr, o.detail()})
	}
	table.Render()
}

func (o Outcome) detail() string {
	var s string
	switch o.Result {
	case Updated:
		s = "was " + o.Previous
	case Skipped:
		s = o.Reason
	case Failed:
		if o.Err != nil {
			s = o.Err.Error()
		}
	}
	if r := []rune(s); len(r) > 64 {
		s = string(r[:64]) + "..."
	}
	return s
}
