// Package metrics pushes the result of a run to a Prometheus Pushgateway.
//
// A cron job has no scrape endpoint, so the last run's state is pushed instead and replaced on every run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	ddns "github.com/Travis-Britz/cfddns"
)

// Job is the Pushgateway job label.
const Job = "cfddns"

// Registry builds a registry describing report.
// runErr is the run-level error returned alongside the report.
func Registry(report *ddns.RunReport, runErr error) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	outcome := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ddns_record_outcome",
		Help: "Result of the last run per record, 1 for the result that happened.",
	}, []string{"name", "type", "result"})
	outcomes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ddns_outcomes",
		Help: "Number of records per result in the last run.",
	}, []string{"result"})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ddns_last_run_success",
		Help: "1 if the last run had no failures.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ddns_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ddns_last_run_duration_seconds",
		Help: "Wall time of the last run.",
	})
	reg.MustRegister(outcome, outcomes, success, lastRun, duration)

	for _, r := range []ddns.Result{ddns.Unchanged, ddns.Created, ddns.Updated, ddns.Skipped, ddns.Failed} {
		outcomes.WithLabelValues(r.String()).Set(float64(report.Count(r)))
	}
	for _, o := range report.Outcomes {
		outcome.WithLabelValues(o.Target.Name, o.Target.Family.RecordType(), o.Result.String()).Set(1)
	}
	if runErr == nil && report.OK() {
		success.Set(1)
	}
	if !report.Finished.IsZero() {
		lastRun.Set(float64(report.Finished.Unix()))
		duration.Set(report.Finished.Sub(report.Started).Seconds())
	}
	return reg
}

// Push replaces the job's metrics on the Pushgateway at url.
func Push(ctx context.Context, url string, report *ddns.RunReport, runErr error) error {
	err := push.New(url, Job).
		Gatherer(Registry(report, runErr)).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("error pushing metrics to %s: %w", url, err)
	}
	return nil
}
