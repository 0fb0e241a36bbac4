package azdo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/azdo-client/pkg/client"
)

// continuationHeader carries the paging token of testplan list APIs.
const continuationHeader = "X-Ms-Continuationtoken"

// maxPages bounds continuation-token paging.
const maxPages = 50

// TestPlan is a test plan.
type TestPlan struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	AreaPath  string `json:"areaPath"`
	Iteration string `json:"iteration"`
	RootSuite struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"rootSuite"`
}

// TestSuite is a suite inside a test plan.
type TestSuite struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	SuiteType   string `json:"suiteType"`
	ParentSuite *struct {
		ID int `json:"id"`
	} `json:"parentSuite,omitempty"`
}

// TestCase is a test case reference within a suite.
type TestCase struct {
	WorkItem struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"workItem"`
	PointAssignments []struct {
		ID            int    `json:"id"`
		Configuration string `json:"configurationName"`
		Tester        *struct {
			DisplayName string `json:"displayName"`
		} `json:"tester,omitempty"`
	} `json:"pointAssignments"`
}

// ListTestPlans returns every test plan of the project.
func (s *Service) ListTestPlans(ctx context.Context, project string) ([]TestPlan, error) {
	project, err := s.project(project)
	if err != nil {
		return nil, err
	}

	plans, err := listPaged[TestPlan](ctx, s, segments(project, "_apis/testplan/plans"))
	if err != nil {
		return nil, fmt.Errorf("list test plans: %w", err)
	}
	return plans, nil
}

// ListTestSuites returns the suites of a plan.
func (s *Service) ListTestSuites(ctx context.Context, project string, planID int) ([]TestSuite, error) {
	project, err := s.project(project)
	if err != nil {
		return nil, err
	}

	path := segments(project, "_apis/testplan/Plans", strconv.Itoa(planID), "suites")
	suites, err := listPaged[TestSuite](ctx, s, path)
	if err != nil {
		return nil, fmt.Errorf("list test suites of plan %d: %w", planID, err)
	}
	return suites, nil
}

// ListTestCases returns the test cases of a suite. A zero suiteID uses the plan's root suite.
func (s *Service) ListTestCases(ctx context.Context, project string, planID, suiteID int) ([]TestCase, error) {
	project, err := s.project(project)
	if err != nil {
		return nil, err
	}

	if suiteID == 0 {
		var plan TestPlan
		ep := client.Endpoint{Method: http.MethodGet, Path: segments(project, "_apis/testplan/plans", strconv.Itoa(planID))}
		if err := s.do(ctx, ep, &plan); err != nil {
			return nil, fmt.Errorf("get test plan %d: %w", planID, err)
		}
		suiteID = plan.RootSuite.ID
	}

	path := segments(project, "_apis/testplan/Plans", strconv.Itoa(planID), "Suites", strconv.Itoa(suiteID), "TestCase")
	cases, err := listPaged[TestCase](ctx, s, path)
	if err != nil {
		return nil, fmt.Errorf("list test cases of suite %d: %w", suiteID, err)
	}
	return cases, nil
}

// listPaged follows continuation tokens until the service stops sending one.
func listPaged[T any](ctx context.Context, s *Service, path string) ([]T, error) {
	var (
		all   []T
		token string
	)
	for page := 0; page < maxPages; page++ {
		ep := client.Endpoint{Method: http.MethodGet, Path: path}
		if token != "" {
			ep.Query = url.Values{"continuationToken": {token}}
		}

		resp, err := s.d.Dispatch(ctx, ep)
		if err != nil {
			return nil, err
		}

		var res list[T]
		if err := resp.Decode(&res); err != nil {
			return nil, err
		}
		all = append(all, res.Value...)

		token = resp.Header.Get(continuationHeader)
		if token == "" {
			return all, nil
		}
	}

	s.logger.Warn().Str("path", path).Int("pages", maxPages).Msg("Stopped following continuation tokens")
	return all, nil
}
