// Package azdo turns logical Azure DevOps operations into dispatched calls.
//
// Every method here goes through a client.Dispatcher, so work item, sprint and
// test plan lookups all draw on the same rate budget and retry policy.
package azdo

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/Sternrassler/azdo-client/pkg/batch"
	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrProjectRequired is returned when neither the call nor the service names a project.
	ErrProjectRequired = errors.New("project is required")

	// ErrTeamRequired is returned by sprint lookups without a team.
	ErrTeamRequired = errors.New("team is required")

	// ErrNoCurrentIteration is returned when the team has no sprint covering today.
	ErrNoCurrentIteration = errors.New("no current iteration")
)

// Dispatcher is the part of *client.Dispatcher the services need.
type Dispatcher interface {
	Dispatch(ctx context.Context, ep client.Endpoint) (*client.Response, error)
}

// Options configures a Service.
type Options struct {
	// Project and Team are used when a call does not name its own.
	Project string
	Team    string

	// MaxIDsPerBatch bounds workitemsbatch requests. Defaults to batch.DefaultChunkSize.
	MaxIDsPerBatch int
}

// Service groups the work item, iteration and test plan callers.
type Service struct {
	d      Dispatcher
	opts   Options
	logger zerolog.Logger
}

// New creates a Service on top of d.
func New(d Dispatcher, opts Options) *Service {
	if opts.MaxIDsPerBatch <= 0 || opts.MaxIDsPerBatch > batch.DefaultChunkSize {
		opts.MaxIDsPerBatch = batch.DefaultChunkSize
	}
	return &Service{
		d:      d,
		opts:   opts,
		logger: log.With().Str("component", "azdo").Logger(),
	}
}

// Project returns the default project.
func (s *Service) Project() string { return s.opts.Project }

func (s *Service) project(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if s.opts.Project != "" {
		return s.opts.Project, nil
	}
	return "", ErrProjectRequired
}

func (s *Service) do(ctx context.Context, ep client.Endpoint, out any) error {
	resp, err := s.d.Dispatch(ctx, ep)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// segments joins path parts with "/", escaping every segment. Project and team
// names cannot contain "/", so splitting on it is safe.
func segments(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, seg := range strings.Split(p, "/") {
			if seg != "" {
				escaped = append(escaped, url.PathEscape(seg))
			}
		}
	}
	return strings.Join(escaped, "/")
}

// list is the envelope Azure DevOps wraps collections in.
type list[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}
