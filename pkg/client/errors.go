package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Terminal error kinds surfaced to callers. Every retryable condition is absorbed
// inside the dispatcher; a caller only sees one of these after the pipeline gave up.
var (
	// ErrRateLimitExceeded is returned when retries ran out while the service kept answering 429.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrAuthenticationFailed is returned when a credential refresh failed, or the
	// service still rejected the call after one refresh.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTransientNetworkFailure is returned when retries ran out on network errors,
	// timeouts or 5xx responses.
	ErrTransientNetworkFailure = errors.New("transient network failure")

	// ErrPermanentRequestFailure is returned for 4xx responses other than 401 and 429.
	ErrPermanentRequestFailure = errors.New("permanent request failure")

	// ErrDispatcherClosed is returned for calls dispatched after Close, or still
	// pending when Close was called.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrHostNotAllowed is the cause of a permanent failure for an absolute endpoint
	// URL outside the organization and the Azure DevOps service domains.
	ErrHostNotAllowed = errors.New("host not allowed")
)

// ErrorClass represents a classification of failed attempts, used for metrics and logs.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 401 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network errors and attempt timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAuth represents 401 responses and refresh failures.
	ErrorClassAuth ErrorClass = "auth"
)

// APIError is the terminal error for a dispatched call.
type APIError struct {
	// Kind is one of the Err* sentinels above.
	Kind       error
	Class      ErrorClass
	StatusCode int
	Method     string
	Path       string

	// Message is the service's error message when the body carried one.
	Message  string
	Body     []byte
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "azdo %s %s: %v", e.Method, e.Path, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " (status %d, %d attempts)", e.StatusCode, e.Attempts)
	} else {
		fmt.Fprintf(&sb, " (%d attempts)", e.Attempts)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// serviceMessage extracts the "message" field Azure DevOps puts in error bodies,
// falling back to a truncated copy of the raw body.
func serviceMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	const maxRaw = 256
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxRaw {
		cut := maxRaw
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
