// Package mcptools exposes the Azure DevOps services as MCP tools.
//
// Each tool follows the same shape:
// - A struct holding its service dependency, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() runs the call and renders a markdown result
//
// Terminal pipeline errors are translated into user-facing text here and
// returned as tool errors, never as protocol errors.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/Sternrassler/azdo-client/pkg/wiql"
	"github.com/mark3labs/mcp-go/mcp"
)

// WorkItemService is what the work item tools need.
type WorkItemService interface {
	QueryWorkItems(ctx context.Context, f wiql.Filter, top int) ([]azdo.WorkItem, error)
	GetWorkItems(ctx context.Context, ids []int, fields []string) ([]azdo.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int, ops []azdo.PatchOp) (*azdo.WorkItem, error)
}

// SprintService is what list_sprints needs.
type SprintService interface {
	ListIterations(ctx context.Context, project, team, timeframe string) ([]azdo.Iteration, error)
}

// TestPlanService is what list_test_cases needs.
type TestPlanService interface {
	ListTestPlans(ctx context.Context, project string) ([]azdo.TestPlan, error)
	ListTestCases(ctx context.Context, project string, planID, suiteID int) ([]azdo.TestCase, error)
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// listArg splits a comma-separated argument, dropping blanks.
func listArg(req mcp.CallToolRequest, key string) []string {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// idsArg parses a comma-separated list of work item IDs.
func idsArg(req mcp.CallToolRequest, key string) ([]int, error) {
	parts := listArg(req, key)
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimPrefix(p, "#"))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not a work item ID", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// userMessage turns a service error into something an agent can relay to the user.
func userMessage(err error) string {
	var apiErr *client.APIError
	hasAPI := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, client.ErrRateLimitExceeded):
		return "Azure DevOps is rate limiting requests. Wait a minute and try again."
	case errors.Is(err, client.ErrAuthenticationFailed):
		return "Authentication with Azure DevOps failed. Check that the personal access token is valid, has not expired and has the required scopes."
	case errors.Is(err, client.ErrTransientNetworkFailure):
		return "Azure DevOps could not be reached after several attempts. Check the network connection and try again."
	case errors.Is(err, client.ErrPermanentRequestFailure):
		if hasAPI && apiErr.Message != "" {
			return fmt.Sprintf("Azure DevOps rejected the request (HTTP %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		if hasAPI {
			return fmt.Sprintf("Azure DevOps rejected the request (HTTP %d).", apiErr.StatusCode)
		}
		return "Azure DevOps rejected the request."
	case errors.Is(err, client.ErrDispatcherClosed):
		return "The Azure DevOps bridge is shutting down."
	case errors.Is(err, azdo.ErrProjectRequired):
		return "No project was given and AZDO_PROJECT is not set."
	case errors.Is(err, azdo.ErrTeamRequired):
		return "No team was given and AZDO_TEAM is not set."
	case errors.Is(err, azdo.ErrNoCurrentIteration):
		return "The team has no sprint covering today."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled before Azure DevOps answered."
	default:
		return err.Error()
	}
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(userMessage(err))
}

// cell makes a value safe for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if s == "" {
		return "—"
	}
	return s
}

func workItemTable(items []azdo.WorkItem) string {
	var sb strings.Builder
	sb.WriteString("| ID | Type | State | Title | Assigned To |\n")
	sb.WriteString("|----|------|-------|-------|-------------|\n")
	for _, wi := range items {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			wi.ID, cell(wi.Type()), cell(wi.State()), cell(wi.Title()), cell(wi.AssignedTo()))
	}
	return sb.String()
}
