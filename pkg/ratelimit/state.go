package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Azure DevOps throttling headers. They appear once a caller is close to or past
// its global consumption limit.
const (
	HeaderResource  = "X-RateLimit-Resource"
	HeaderDelay     = "X-RateLimit-Delay"
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// NearLimitRatio marks the service state as near its limit when less than this
// share of the limit remains.
const NearLimitRatio = 0.1

// ServiceState is the service-side throttling state reported on a response.
type ServiceState struct {
	// Resource is the throttled resource, e.g. "Core" or "ReleaseManagement".
	Resource string

	// Delay is how long the service delayed the request.
	Delay time.Duration

	// Limit and Remaining are in TSTUs (throughput units) for the current window.
	Limit     float64
	Remaining float64

	// ResetAt is when the service expects usage to fall back under the limit.
	ResetAt time.Time
}

// ParseServiceState reads the throttling headers. It returns nil, nil when the
// response carries none of them.
func ParseServiceState(headers http.Header) (*ServiceState, error) {
	if headers.Get(HeaderResource) == "" && headers.Get(HeaderDelay) == "" &&
		headers.Get(HeaderRemaining) == "" && headers.Get(HeaderLimit) == "" {
		return nil, nil
	}

	state := &ServiceState{Resource: headers.Get(HeaderResource)}

	if v := strings.TrimSpace(headers.Get(HeaderDelay)); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderDelay, err)
		}
		state.Delay = time.Duration(secs * float64(time.Second))
	}

	if v := strings.TrimSpace(headers.Get(HeaderLimit)); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
		state.Limit = limit
	}

	if v := strings.TrimSpace(headers.Get(HeaderRemaining)); v != "" {
		remaining, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remaining
	}

	if v := strings.TrimSpace(headers.Get(HeaderReset)); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = time.Unix(epoch, 0)
	}

	return state, nil
}

// IsDelayed reports whether the service delayed the request.
func (s *ServiceState) IsDelayed() bool {
	return s.Delay > 0
}

// NearLimit reports whether less than NearLimitRatio of the limit remains.
func (s *ServiceState) NearLimit() bool {
	if s.Limit <= 0 {
		return false
	}
	return s.Remaining < s.Limit*NearLimitRatio
}

// TimeUntilReset returns the duration until ResetAt, or 0 if unknown or past.
func (s *ServiceState) TimeUntilReset(now time.Time) time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
