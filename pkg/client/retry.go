package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OutcomeKind is the classification of one attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeAuthExpired
	OutcomeTransientFailure
	OutcomePermanentFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomePermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of executing one attempt of a pending call.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int

	// RetryAfter is the server's Retry-After hint; 0 when absent.
	RetryAfter time.Duration

	Response *Response

	// Err is the transport error for network failures and timeouts.
	Err error
}

// Class maps the outcome to an error class for metrics.
func (o Outcome) Class() ErrorClass {
	switch o.Kind {
	case OutcomeRateLimited:
		return ErrorClassRateLimit
	case OutcomeAuthExpired:
		return ErrorClassAuth
	case OutcomeTransientFailure:
		if o.Err != nil {
			return ErrorClassNetwork
		}
		return ErrorClassServer
	case OutcomePermanentFailure:
		return ErrorClassClient
	default:
		return ""
	}
}

// ClassifyAttempt turns a response or transport error into an Outcome.
func ClassifyAttempt(resp *Response, err error) Outcome {
	if err != nil {
		return Outcome{Kind: OutcomeTransientFailure, Err: err}
	}

	out := Outcome{StatusCode: resp.StatusCode, Response: resp}
	switch {
	case resp.StatusCode < 400:
		out.Kind = OutcomeSuccess
	case resp.StatusCode == http.StatusUnauthorized:
		out.Kind = OutcomeAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		out.Kind = OutcomeRateLimited
		if d, ok := ParseRetryAfter(resp.Header, time.Now()); ok {
			out.RetryAfter = d
		}
	case resp.StatusCode >= 500:
		out.Kind = OutcomeTransientFailure
	default:
		out.Kind = OutcomePermanentFailure
	}
	return out
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

// Action is what the dispatcher does next with a pending call.
type Action int

const (
	ActionResolve Action = iota
	ActionReject
	ActionRetryAfter
	ActionRefreshAuth
)

func (a Action) String() string {
	switch a {
	case ActionResolve:
		return "resolve"
	case ActionReject:
		return "reject"
	case ActionRetryAfter:
		return "retry_after"
	case ActionRefreshAuth:
		return "refresh_auth"
	default:
		return "unknown"
	}
}

// Decision is the classifier's verdict for one outcome.
type Decision struct {
	Action Action

	// Delay is set for ActionRetryAfter.
	Delay time.Duration

	// Kind is the terminal error sentinel for ActionReject.
	Kind error
}

// RetryPolicy holds the configuration for retry decisions.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff for the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps exponential backoff. Zero means no cap.
	MaxDelay time.Duration

	// RateLimitDelay is used for 429 responses without a Retry-After header.
	RateLimitDelay time.Duration
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		RateLimitDelay: 5 * time.Second,
	}
}

// Backoff returns 2^retries * BaseDelay, capped at MaxDelay.
func (p RetryPolicy) Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries > 30 {
		retries = 30
	}
	d := p.BaseDelay * time.Duration(1<<uint(retries))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Decide maps an outcome to the next action. retries is the number of retries the
// call has already used; refreshed reports whether its one credential refresh is spent.
func (p RetryPolicy) Decide(o Outcome, retries int, refreshed bool) Decision {
	switch o.Kind {
	case OutcomeSuccess:
		return Decision{Action: ActionResolve}

	case OutcomeAuthExpired:
		// A refresh does not consume a retry, but only one is allowed per call.
		if refreshed {
			return Decision{Action: ActionReject, Kind: ErrAuthenticationFailed}
		}
		return Decision{Action: ActionRefreshAuth}

	case OutcomeRateLimited:
		if retries >= p.MaxRetries {
			return Decision{Action: ActionReject, Kind: ErrRateLimitExceeded}
		}
		delay := o.RetryAfter
		if delay <= 0 {
			delay = p.RateLimitDelay
		}
		return Decision{Action: ActionRetryAfter, Delay: delay}

	case OutcomeTransientFailure:
		if retries >= p.MaxRetries {
			return Decision{Action: ActionReject, Kind: ErrTransientNetworkFailure}
		}
		return Decision{Action: ActionRetryAfter, Delay: p.Backoff(retries)}

	default:
		return Decision{Action: ActionReject, Kind: ErrPermanentRequestFailure}
	}
}
