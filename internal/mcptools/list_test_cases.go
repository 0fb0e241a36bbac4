package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ListTestCasesTool handles the list_test_cases MCP tool.
// Without a plan_id it lists the project's test plans instead.
type ListTestCasesTool struct {
	svc TestPlanService
}

// NewListTestCasesTool creates a ListTestCasesTool.
func NewListTestCasesTool(svc TestPlanService) *ListTestCasesTool {
	return &ListTestCasesTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTestCasesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_test_cases",
		mcp.WithDescription(
			"List the test cases of a test plan suite. If `plan_id` is omitted, "+
				"lists the project's test plans so one can be picked.",
		),
		mcp.WithString("project",
			mcp.Description("Project name. Defaults to the configured project."),
		),
		mcp.WithNumber("plan_id",
			mcp.Description("Test plan ID."),
		),
		mcp.WithNumber("suite_id",
			mcp.Description("Suite ID. Defaults to the plan's root suite."),
		),
	)
}

// Handle processes the list_test_cases tool call.
func (t *ListTestCasesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := req.GetString("project", "")
	planID := intArg(req, "plan_id", 0)

	if planID <= 0 {
		plans, err := t.svc.ListTestPlans(ctx, project)
		if err != nil {
			return toolError(err), nil
		}
		if len(plans) == 0 {
			return mcp.NewToolResultText("The project has no test plans."), nil
		}

		var sb strings.Builder
		sb.WriteString("# Test Plans\n\n")
		sb.WriteString("| ID | Name | State | Iteration | Root Suite |\n")
		sb.WriteString("|----|------|-------|-----------|------------|\n")
		for _, p := range plans {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %d |\n", p.ID, cell(p.Name), cell(p.State), cell(p.Iteration), p.RootSuite.ID)
		}
		sb.WriteString("\nCall again with `plan_id` to list a plan's test cases.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	cases, err := t.svc.ListTestCases(ctx, project, planID, intArg(req, "suite_id", 0))
	if err != nil {
		return toolError(err), nil
	}
	if len(cases) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Test plan %d has no test cases in that suite.", planID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Test Cases (plan %d)\n\n", planID)
	sb.WriteString("| ID | Name | Configurations | Testers |\n")
	sb.WriteString("|----|------|----------------|---------|\n")
	for _, tc := range cases {
		var configs, testers []string
		for _, pa := range tc.PointAssignments {
			configs = append(configs, pa.Configuration)
			if pa.Tester != nil {
				testers = append(testers, pa.Tester.DisplayName)
			}
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
			tc.WorkItem.ID, cell(tc.WorkItem.Name), cell(strings.Join(configs, ", ")), cell(strings.Join(testers, ", ")))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
