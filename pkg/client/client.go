// Package client provides the rate-limited, retrying request pipeline every Azure
// DevOps call goes through: a FIFO dispatch queue drained against a sliding-window
// limiter, outcome classification with exponential backoff, and one transparent
// credential refresh per call on 401.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/metrics"
	"github.com/Sternrassler/azdo-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AuthProvider supplies the Authorization header and refreshes the credential in place.
type AuthProvider interface {
	AuthHeader() string
	Refresh(ctx context.Context) error
}

// Config holds the dispatcher configuration.
type Config struct {
	// BaseURL is the organization URL, e.g. https://dev.azure.com/contoso.
	BaseURL string

	UserAgent string

	// APIVersion is added as api-version to calls that do not set one. Empty disables it.
	APIVersion string

	// Rate Limiting
	MaxRequestsPerWindow int
	WindowDuration       time.Duration

	// Retry
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	RateLimitDelay time.Duration

	// Concurrency is the number of calls allowed in flight at once.
	Concurrency int

	// CallTimeout bounds a single attempt. A timed-out attempt is a transient failure.
	CallTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:              baseURL,
		UserAgent:            "azdo-client/0.1.0",
		APIVersion:           "7.1",
		MaxRequestsPerWindow: ratelimit.DefaultMaxRequests,
		WindowDuration:       ratelimit.DefaultWindow,
		MaxRetries:           3,
		BaseBackoff:          1 * time.Second,
		MaxBackoff:           30 * time.Second,
		RateLimitDelay:       5 * time.Second,
		Concurrency:          1,
		CallTimeout:          30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url must be absolute (got %q)", c.BaseURL)
	}
	if c.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("max_requests_per_window must be > 0 (got %d)", c.MaxRequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window_duration must be > 0 (got %s)", c.WindowDuration)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.BaseBackoff <= 0 {
		return fmt.Errorf("base_backoff must be > 0 (got %s)", c.BaseBackoff)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0 (got %d)", c.Concurrency)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be > 0 (got %s)", c.CallTimeout)
	}
	return nil
}

// RetryPolicy derives the classifier configuration.
func (c Config) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = c.MaxRetries
	p.BaseDelay = c.BaseBackoff
	p.MaxDelay = c.MaxBackoff
	if c.RateLimitDelay > 0 {
		p.RateLimitDelay = c.RateLimitDelay
	}
	return p
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the HTTP client used for attempts.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = hc }
}

// WithLimiter replaces the in-process window, e.g. with a ratelimit.SharedWindow.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithMetrics sets the collectors the dispatcher updates.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher. It owns its queue and rate window; share the instance
// across every caller that should draw on the same budget.
func New(cfg Config, auth AuthProvider, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("auth provider is required")
	}

	baseURL, _ := url.Parse(cfg.BaseURL)
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		cfg:        cfg,
		baseURL:    baseURL,
		auth:       auth,
		policy:     cfg.RetryPolicy(),
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "dispatcher").Logger(),
		deferred:   make(map[*pendingCall]*time.Timer),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.limiter == nil {
		d.limiter = ratelimit.NewWindow(cfg.MaxRequestsPerWindow, cfg.WindowDuration, nil)
	}
	if d.metrics == nil {
		d.metrics = metrics.NewUnregistered()
	}

	return d, nil
}
