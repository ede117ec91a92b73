// Package config assembles the run configuration from flags, the environment, an optional YAML file and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"
	"golang.org/x/net/publicsuffix"

	ddns "github.com/Travis-Britz/cfddns"
)

// Config is everything a run needs.
// Zero values mean "not set" so that layers can be merged.
type Config struct {
	Names     []string `yaml:"names"`
	Domain    string   `yaml:"domain"`
	Subdomain string   `yaml:"subdomain"`
	Families  []string `yaml:"families"`
	ZoneID    string   `yaml:"zone_id"`

	Email    string `yaml:"email"`
	APIKey   string `yaml:"api_key"`
	APIToken string `yaml:"api_token"`
	KeyFile  string `yaml:"key_file"`
	// BaseURL overrides the Cloudflare API endpoint.
	BaseURL string `yaml:"api_base_url"`

	TTL     int    `yaml:"ttl"`
	Proxied bool   `yaml:"proxied"`
	Comment string `yaml:"comment"`

	Addresses  []string      `yaml:"addresses"`
	IPServices []string      `yaml:"ip_services"`
	Interfaces []string      `yaml:"interfaces"`
	Timeout    time.Duration `yaml:"timeout"`

	Pushgateway string `yaml:"pushgateway"`
	SentryDSN   string `yaml:"sentry_dsn"`
	LogLevel    string `yaml:"log_level"`

	VerifyTokenOnly bool `yaml:"-"`
}

// Defaults is the lowest configuration layer.
func Defaults() Config {
	return Config{
		Families: []string{"ipv4", "ipv6"},
		KeyFile:  DefaultKeyFile(),
		TTL:      60,
		Comment:  ddns.DefaultComment,
		Timeout:  15 * time.Second,
		LogLevel: "info",
	}
}

// DefaultKeyFile is ~/.cloudflare.
func DefaultKeyFile() string {
	return filepath.Join(os.Getenv("HOME"), ".cloudflare")
}

// Load reads a YAML configuration file.
// ${VAR} references in the credential and DSN fields are expanded from the environment.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	for _, s := range []*string{&cfg.Email, &cfg.APIKey, &cfg.APIToken, &cfg.SentryDSN, &cfg.KeyFile} {
		*s = os.ExpandEnv(*s)
	}
	return cfg, nil
}

// FromEnv reads the credential variables.
// CLOUDFLARE_ZONE_TOKEN is accepted as an alias for CLOUDFLARE_API_TOKEN.
func FromEnv(lookup func(string) (string, bool)) Config {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				return v
			}
		}
		return ""
	}
	return Config{
		APIToken:  get("CLOUDFLARE_API_TOKEN", "CLOUDFLARE_ZONE_TOKEN"),
		Email:     get("CLOUDFLARE_EMAIL"),
		APIKey:    get("CLOUDFLARE_API_KEY"),
		SentryDSN: get("SENTRY_DSN"),
	}
}

// Merge combines layers, highest precedence first.
// A field set in an earlier layer is never overwritten by a later one.
//
// Booleans can only be turned on by a layer, never off again.
func Merge(layers ...Config) (Config, error) {
	if len(layers) == 0 {
		return Config{}, nil
	}
	merged := layers[0]
	for _, l := range layers[1:] {
		if err := mergo.Merge(&merged, l); err != nil {
			return Config{}, fmt.Errorf("merging configuration: %w", err)
		}
	}
	return merged, nil
}

// AllNames returns Names plus the name built from Domain and Subdomain,
// canonicalised and without duplicates, in order.
// A Subdomain of "@" or "" means the Domain itself.
func (c Config) AllNames() []string {
	names := append([]string{}, c.Names...)
	if c.Domain != "" {
		switch c.Subdomain {
		case "", "@":
			names = append(names, c.Domain)
		default:
			names = append(names, c.Subdomain+"."+c.Domain)
		}
	}
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		n = ddns.CanonicalName(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// FamilyList parses Families.
func (c Config) FamilyList() ([]ddns.Family, error) {
	var fs []ddns.Family
	for _, s := range c.Families {
		f, err := ddns.ParseFamily(s)
		if err != nil {
			return nil, &ddns.ConfigError{Err: err}
		}
		fs = append(fs, f)
	}
	return fs, nil
}

// Validate checks everything that can be checked without touching the network or the key file.
func (c Config) Validate() error {
	if c.VerifyTokenOnly {
		return c.validateCredentialShape()
	}
	names := c.AllNames()
	if len(names) == 0 {
		return ddns.Configf("at least one name is required")
	}
	for _, n := range names {
		if err := ddns.ValidName(n); err != nil {
			return &ddns.ConfigError{Err: err}
		}
		if _, err := publicsuffix.EffectiveTLDPlusOne(n); err != nil {
			return ddns.Configf("name %q has no registrable domain: %w", n, err)
		}
	}
	fs, err := c.FamilyList()
	if err != nil {
		return err
	}
	if len(fs) == 0 {
		return ddns.Configf("at least one address family is required")
	}
	if c.TTL != 0 && c.TTL != 1 && (c.TTL < 30 || c.TTL > 86400) {
		return ddns.Configf("ttl must be 1 (automatic) or between 30 and 86400; got %d", c.TTL)
	}
	if c.Timeout < 0 {
		return ddns.Configf("timeout cannot be negative")
	}
	if len(c.Addresses) > 0 && len(c.Interfaces) > 0 {
		return ddns.Configf("addresses and interfaces cannot both be set")
	}
	return c.validateCredentialShape()
}

func (c Config) validateCredentialShape() error {
	hasToken := c.APIToken != ""
	hasKey := c.Email != "" || c.APIKey != ""
	switch {
	case hasToken && hasKey:
		return ddns.Configf("api token and email/api key are mutually exclusive")
	case hasKey && (c.Email == "" || c.APIKey == ""):
		return ddns.Configf("email and api key must be given together")
	}
	return nil
}

// Credentials returns the single active credential.
// An API token or an email and global key from the configuration win;
// otherwise the token is read from the key file.
func (c Config) Credentials(fs afero.Fs) (ddns.Credentials, error) {
	if err := c.validateCredentialShape(); err != nil {
		return nil, err
	}
	switch {
	case c.APIToken != "":
		return ddns.APIToken(c.APIToken), nil
	case c.Email != "":
		return ddns.GlobalKey{Email: c.Email, Key: c.APIKey}, nil
	case c.KeyFile != "":
		key, err := ReadKeyFile(fs, c.KeyFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ddns.Configf("no credentials: set an api token, an email and api key, or create %q", c.KeyFile)
			}
			return nil, &ddns.ConfigError{Err: err}
		}
		return ddns.APIToken(key), nil
	}
	return nil, ddns.Configf("no credentials: set an api token or an email and api key")
}

// Redacted is safe to log.
func (c Config) Redacted() Config {
	hide := func(s string) string {
		if s == "" {
			return ""
		}
		return "REDACTED"
	}
	c.APIKey = hide(c.APIKey)
	c.APIToken = hide(c.APIToken)
	c.SentryDSN = hide(c.SentryDSN)
	return c
}

func (c Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("names=%s families=%s zone_id=%q ttl=%d proxied=%t key_file=%q token=%s email=%q key=%s",
		strings.Join(r.AllNames(), ","), strings.Join(r.Families, ","), r.ZoneID, r.TTL, r.Proxied, r.KeyFile, r.APIToken, r.Email, r.APIKey)
}
