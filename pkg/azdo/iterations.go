package azdo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/client"
)

// Iteration is a team sprint.
type Iteration struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Attributes IterationAttributes `json:"attributes"`
}

// IterationAttributes carries the sprint dates.
type IterationAttributes struct {
	StartDate  *time.Time `json:"startDate"`
	FinishDate *time.Time `json:"finishDate"`
	TimeFrame  string     `json:"timeFrame"`
}

// Timeframes accepted by ListIterations.
const (
	TimeframeAll     = ""
	TimeframeCurrent = "current"
	TimeframePast    = "past"
	TimeframeFuture  = "future"
)

// ListIterations returns the team's sprints, optionally limited to a timeframe.
// Empty project and team fall back to the service defaults.
func (s *Service) ListIterations(ctx context.Context, project, team, timeframe string) ([]Iteration, error) {
	project, err := s.project(project)
	if err != nil {
		return nil, err
	}
	if team == "" {
		team = s.opts.Team
	}
	if team == "" {
		return nil, ErrTeamRequired
	}

	ep := client.Endpoint{
		Method: http.MethodGet,
		Path:   segments(project, team, "_apis/work/teamsettings/iterations"),
	}
	if timeframe != TimeframeAll {
		ep.Query = url.Values{"$timeframe": {timeframe}}
	}

	var res list[Iteration]
	if err := s.do(ctx, ep, &res); err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	return res.Value, nil
}

// CurrentIteration returns the team's current sprint.
func (s *Service) CurrentIteration(ctx context.Context, project, team string) (*Iteration, error) {
	its, err := s.ListIterations(ctx, project, team, TimeframeCurrent)
	if err != nil {
		return nil, err
	}
	if len(its) == 0 {
		return nil, ErrNoCurrentIteration
	}
	return &its[0], nil
}
