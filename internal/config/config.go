// Package config loads the bridge configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/auth"
	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/Sternrassler/azdo-client/pkg/logging"
	"github.com/caarlos0/env/v11"
)

// Config is the full environment configuration.
type Config struct {
	OrgURL  string `env:"AZDO_ORG_URL,notEmpty"`
	Project string `env:"AZDO_PROJECT"`
	Team    string `env:"AZDO_TEAM"`

	PAT        string `env:"AZDO_PAT"`
	TokenFile  string `env:"AZDO_TOKEN_FILE"`
	AuthScheme string `env:"AZDO_AUTH_SCHEME" envDefault:"basic"`

	APIVersion string `env:"AZDO_API_VERSION" envDefault:"7.1"`

	MaxRequestsPerWindow int           `env:"AZDO_MAX_REQUESTS_PER_WINDOW" envDefault:"200"`
	RateWindow           time.Duration `env:"AZDO_RATE_WINDOW" envDefault:"60s"`
	MaxRetries           int           `env:"AZDO_MAX_RETRIES" envDefault:"3"`
	BaseBackoff          time.Duration `env:"AZDO_BASE_BACKOFF" envDefault:"1s"`
	MaxBackoff           time.Duration `env:"AZDO_MAX_BACKOFF" envDefault:"30s"`
	RateLimitDelay       time.Duration `env:"AZDO_RATE_LIMIT_DELAY" envDefault:"5s"`
	MaxIDsPerBatch       int           `env:"AZDO_MAX_IDS_PER_BATCH" envDefault:"200"`
	Concurrency          int           `env:"AZDO_CONCURRENCY" envDefault:"1"`
	CallTimeout          time.Duration `env:"AZDO_CALL_TIMEOUT" envDefault:"30s"`

	RedisAddr     string `env:"AZDO_REDIS_ADDR"`
	RedisPassword string `env:"AZDO_REDIS_PASSWORD"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	ProxyAddr string `env:"PROXY_ADDR" envDefault:"127.0.0.1:8080"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	c.OrgURL = strings.TrimRight(c.OrgURL, "/")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects non-positive knobs and a missing credential.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.OrgURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("AZDO_ORG_URL must be an absolute URL (got %q)", c.OrgURL))
	}
	if c.PAT == "" && c.TokenFile == "" {
		errs = append(errs, errors.New("one of AZDO_PAT or AZDO_TOKEN_FILE is required"))
	}
	if _, err := auth.ParseScheme(c.AuthScheme); err != nil {
		errs = append(errs, fmt.Errorf("AZDO_AUTH_SCHEME: %w", err))
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"AZDO_MAX_REQUESTS_PER_WINDOW", c.MaxRequestsPerWindow > 0},
		{"AZDO_RATE_WINDOW", c.RateWindow > 0},
		{"AZDO_BASE_BACKOFF", c.BaseBackoff > 0},
		{"AZDO_MAX_BACKOFF", c.MaxBackoff > 0},
		{"AZDO_RATE_LIMIT_DELAY", c.RateLimitDelay > 0},
		{"AZDO_MAX_IDS_PER_BATCH", c.MaxIDsPerBatch > 0},
		{"AZDO_CONCURRENCY", c.Concurrency > 0},
		{"AZDO_CALL_TIMEOUT", c.CallTimeout > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.name))
		}
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("AZDO_MAX_RETRIES must be >= 0"))
	}

	return errors.Join(errs...)
}

// Client returns the dispatcher configuration.
func (c Config) Client(userAgent string) client.Config {
	cfg := client.DefaultConfig(c.OrgURL)
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	cfg.APIVersion = c.APIVersion
	cfg.MaxRequestsPerWindow = c.MaxRequestsPerWindow
	cfg.WindowDuration = c.RateWindow
	cfg.MaxRetries = c.MaxRetries
	cfg.BaseBackoff = c.BaseBackoff
	cfg.MaxBackoff = c.MaxBackoff
	cfg.RateLimitDelay = c.RateLimitDelay
	cfg.Concurrency = c.Concurrency
	cfg.CallTimeout = c.CallTimeout
	return cfg
}

// TokenSource returns where the credential is read from. A token file wins over
// AZDO_PAT so refreshes can pick up rotated tokens.
func (c Config) TokenSource() (auth.Scheme, auth.TokenSource, error) {
	scheme, err := auth.ParseScheme(c.AuthScheme)
	if err != nil {
		return "", nil, err
	}
	if c.TokenFile != "" {
		return scheme, auth.FileToken(c.TokenFile), nil
	}
	return scheme, auth.EnvToken("AZDO_PAT"), nil
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.LogLevel))
	cfg.Pretty = c.LogPretty
	return cfg
}

// Organization returns the last path segment of the organization URL, used to
// scope the shared rate window.
func (c Config) Organization() string {
	u, err := url.Parse(c.OrgURL)
	if err != nil {
		return c.OrgURL
	}
	if seg := strings.Trim(u.Path, "/"); seg != "" {
		parts := strings.Split(seg, "/")
		return parts[len(parts)-1]
	}
	// https://contoso.visualstudio.com
	host, _, _ := strings.Cut(u.Host, ".")
	return host
}
