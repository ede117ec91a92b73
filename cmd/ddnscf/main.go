// Command ddnscf points the A and AAAA records of one or more names at this host's public addresses.
//
// It makes a single pass and exits; run it from cron or a systemd timer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/Travis-Britz/cfddns/internal/alert"
	"github.com/Travis-Britz/cfddns/internal/config"
	"github.com/Travis-Britz/cfddns/internal/metrics"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

type options struct {
	cfg        config.Config
	configPath string
	setup      bool
	verbosity  int
	quiet      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	flags := pflag.NewFlagSet("ddnscf", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "content" {
			name = "ip"
		}
		return pflag.NormalizedName(name)
	})

	flags.StringSliceVarP(&o.cfg.Names, "name", "n", nil, "DNS name to update; repeat or separate with commas")
	flags.StringVarP(&o.cfg.Domain, "domain", "d", "", "Domain to update, combined with --subdomain")
	flags.StringVar(&o.cfg.Subdomain, "subdomain", "", "Subdomain of --domain; \"@\" or empty means the domain itself")
	flags.StringSliceVar(&o.cfg.Families, "family", nil, "Address families to manage: ipv4, ipv6 (default both)")
	flags.StringVar(&o.cfg.ZoneID, "zone-id", "", "Cloudflare zone ID; skips zone discovery")

	flags.StringVarP(&o.cfg.KeyFile, "key-file", "k", "", "Path to cloudflare API token file (default ~/.cloudflare)")
	flags.StringVar(&o.cfg.Email, "email", "", "Cloudflare account email, for use with --api-key")
	flags.StringVar(&o.cfg.APIKey, "api-key", "", "Cloudflare global API key")
	flags.StringVar(&o.cfg.APIToken, "api-token", "", "Cloudflare API token")
	flags.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&o.cfg.BaseURL, "api-base-url", "", "Cloudflare API endpoint")
	flags.MarkHidden("api-base-url")

	flags.StringSliceVar(&o.cfg.Addresses, "ip", nil, "Use this address instead of looking it up; at most one per family (alias --content)")
	flags.StringSliceVar(&o.cfg.IPServices, "ip-service", nil, "URL of a service that returns the caller's address; repeatable")
	flags.StringSliceVar(&o.cfg.Interfaces, "interface", nil, "Take the address from these network interfaces instead of a web service")

	flags.IntVar(&o.cfg.TTL, "ttl", 0, "TTL for new records; 1 means automatic (default 60)")
	flags.BoolVar(&o.cfg.Proxied, "proxied", false, "Proxy new records through cloudflare")
	flags.StringVar(&o.cfg.Comment, "comment", "", "Comment for new records")
	flags.DurationVar(&o.cfg.Timeout, "timeout", 0, "Timeout for each record and each address lookup (default 15s)")

	flags.BoolVar(&o.cfg.VerifyTokenOnly, "verify-token", false, "Only check that the credentials are valid")
	flags.BoolVar(&o.setup, "setup", false, "Prompt for an API token and write it to the key file")

	flags.StringVar(&o.cfg.Pushgateway, "pushgateway", "", "Push run metrics to this Prometheus Pushgateway URL")
	flags.StringVar(&o.cfg.SentryDSN, "sentry-dsn", "", "Send failures to Sentry")
	flags.StringVar(&o.cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	flags.CountVarP(&o.verbosity, "verbose", "v", "Increase log verbosity; repeatable")
	flags.BoolVarP(&o.quiet, "quiet", "q", false, "Do not print the report table")

	if err := flags.Parse(args); err != nil {
		return o, err
	}
	if flags.NArg() > 0 {
		o.cfg.Names = append(o.cfg.Names, flags.Args()...)
	}
	return o, nil
}

func run(ctx context.Context, args []string, fsys afero.Fs, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfigError
	}

	cfg, err := loadConfig(o, fsys)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfigError
	}

	logger, flush, err := newLogger(cfg.LogLevel, o.verbosity, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfigError
	}
	defer flush()
	logger.V(1).Info("loaded configuration", "config", cfg.String())

	if o.setup {
		if err := runSetup(ctx, logger, fsys, cfg.KeyFile, cfg.BaseURL, stdout); err != nil {
			logger.Error(err, "setup failed")
			return exitFailure
		}
		return exitOK
	}

	if err := cfg.Validate(); err != nil {
		logger.Error(err, "invalid configuration")
		return exitConfigError
	}

	reporter := ddns.Reporter(ddns.NopReporter{})
	if cfg.SentryDSN != "" {
		s, err := alert.NewSentry(cfg.SentryDSN, sentry.ClientOptions{})
		if err != nil {
			logger.Error(err, "invalid sentry dsn")
			return exitConfigError
		}
		defer s.Flush(5 * time.Second)
		reporter = s
	}

	if cfg.VerifyTokenOnly {
		return verifyToken(ctx, cfg, fsys, logger, reporter, stdout)
	}

	client, err := newClient(cfg, fsys, logger, reporter)
	if err != nil {
		logger.Error(err, "error creating ddns client")
		return exitConfigError
	}

	report, runErr := client.RunDDNS(ctx)
	if !o.quiet {
		report.WriteTable(stdout)
	}
	if cfg.Pushgateway != "" {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pctx, cfg.Pushgateway, report, runErr); err != nil {
			logger.Error(err, "unable to push metrics")
		}
		cancel()
	}
	if runErr != nil {
		logger.Error(runErr, "run failed")
		return exitFailure
	}
	if !report.OK() {
		logger.Error(report.Err(), "some records could not be updated", "failed", len(report.Failed()))
		return exitFailure
	}
	return exitOK
}

// loadConfig merges flags, the environment, the config file and the defaults, in that order of precedence.
func loadConfig(o options, fsys afero.Fs) (config.Config, error) {
	layers := []config.Config{o.cfg, config.FromEnv(os.LookupEnv)}
	if o.configPath != "" {
		file, err := config.Load(fsys, o.configPath)
		if err != nil {
			return config.Config{}, &ddns.ConfigError{Err: err}
		}
		layers = append(layers, file)
	}
	layers = append(layers, config.Defaults())
	return config.Merge(layers...)
}

// verifyToken checks the credentials and touches no record.
func verifyToken(ctx context.Context, cfg config.Config, fsys afero.Fs, logger logr.Logger, reporter ddns.Reporter, stdout io.Writer) int {
	creds, err := cfg.Credentials(fsys)
	if err != nil {
		logger.Error(err, "invalid configuration")
		return exitConfigError
	}
	provider, err := ddns.NewCloudflare(ddns.CloudflareConfig{Credentials: creds, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	if err != nil {
		logger.Error(err, "error creating cloudflare client")
		return exitConfigError
	}
	provider.SetLogger(logger.WithName("provider"))
	ok, err := provider.VerifyToken(ctx)
	switch {
	case err != nil:
		logger.Error(err, "unable to verify credentials", "credentials", creds.String())
		reporter.Report(ddns.Event{Err: err})
		return exitFailure
	case !ok:
		fmt.Fprintf(stdout, "%s is not valid\n", creds)
		return exitFailure
	}
	fmt.Fprintf(stdout, "%s is valid\n", creds)
	return exitOK
}

func newResolver(cfg config.Config) (ddns.Resolver, error) {
	switch {
	case len(cfg.Addresses) > 0:
		r, err := ddns.FromString(cfg.Addresses...)
		if err != nil {
			return nil, &ddns.ConfigError{Err: err}
		}
		return r, nil
	case len(cfg.Interfaces) > 0:
		return ddns.InterfaceResolver(cfg.Interfaces...), nil
	}
	r, err := ddns.WebResolver(cfg.IPServices...)
	if err != nil {
		return nil, &ddns.ConfigError{Err: err}
	}
	return r, nil
}

func newClient(cfg config.Config, fsys afero.Fs, logger logr.Logger, reporter ddns.Reporter) (ddns.DDNSClient, error) {
	creds, err := cfg.Credentials(fsys)
	if err != nil {
		return nil, err
	}
	families, err := cfg.FamilyList()
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	opts := []ddns.ClientOption{
		ddns.UsingCloudflare(ddns.CloudflareConfig{
			Credentials: creds,
			TTL:         cfg.TTL,
			Proxied:     cfg.Proxied,
			Comment:     cfg.Comment,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
		}),
		ddns.UsingResolver(resolver),
		ddns.WithFamilies(families...),
		ddns.WithReporter(reporter),
		ddns.WithLogger(logger),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, ddns.WithTimeout(cfg.Timeout))
	}
	if cfg.ZoneID != "" {
		opts = append(opts, ddns.WithZoneID(cfg.ZoneID))
	}
	return ddns.New(cfg.AllNames(), opts...)
}
