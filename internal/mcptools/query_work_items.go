package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/Sternrassler/azdo-client/pkg/wiql"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultTop = 50

// QueryWorkItemsTool handles the query_work_items MCP tool.
type QueryWorkItemsTool struct {
	svc WorkItemService
}

// NewQueryWorkItemsTool creates a QueryWorkItemsTool.
func NewQueryWorkItemsTool(svc WorkItemService) *QueryWorkItemsTool {
	return &QueryWorkItemsTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *QueryWorkItemsTool) Definition() mcp.Tool {
	return mcp.NewTool("query_work_items",
		mcp.WithDescription(
			"Find Azure DevOps work items matching a filter. All filters are optional and combined with AND. "+
				"List arguments are comma-separated. Returns a table of ID, type, state, title and assignee.",
		),
		mcp.WithString("project",
			mcp.Description("Project name. Defaults to the configured project."),
		),
		mcp.WithString("types",
			mcp.Description("Work item types, e.g. 'Bug,User Story'."),
		),
		mcp.WithString("states",
			mcp.Description("States to include, e.g. 'New,Active'."),
		),
		mcp.WithString("exclude_states",
			mcp.Description("States to exclude, e.g. 'Closed,Removed'."),
		),
		mcp.WithString("assigned_to",
			mcp.Description("Assignee display name or email. Use '@Me' for the authenticated user."),
		),
		mcp.WithString("iteration",
			mcp.Description("Iteration path, or 'current' for the team's current sprint."),
		),
		mcp.WithString("area_path",
			mcp.Description("Area path; child areas are included."),
		),
		mcp.WithString("tags",
			mcp.Description("Tags that must all be present."),
		),
		mcp.WithString("title_contains",
			mcp.Description("Text the title must contain."),
		),
		mcp.WithString("changed_since",
			mcp.Description("Only items changed on or after this date (YYYY-MM-DD) or macro like '@Today - 7'."),
		),
		mcp.WithNumber("top",
			mcp.Description("Maximum number of items to return (default 50)."),
		),
	)
}

// Handle processes the query_work_items tool call.
func (t *QueryWorkItemsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := wiql.Filter{
		Project:       req.GetString("project", ""),
		Types:         listArg(req, "types"),
		States:        listArg(req, "states"),
		ExcludeStates: listArg(req, "exclude_states"),
		AssignedTo:    req.GetString("assigned_to", ""),
		AreaPath:      req.GetString("area_path", ""),
		Tags:          listArg(req, "tags"),
		TitleContains: req.GetString("title_contains", ""),
		ChangedSince:  req.GetString("changed_since", ""),
		Fields: []string{
			azdo.FieldID, azdo.FieldTitle, azdo.FieldState,
			azdo.FieldWorkItemType, azdo.FieldAssignedTo,
		},
	}

	if it := req.GetString("iteration", ""); strings.EqualFold(it, "current") || strings.EqualFold(it, "@CurrentIteration") {
		f.CurrentIteration = true
	} else {
		f.IterationPath = it
	}

	top := intArg(req, "top", defaultTop)
	if top <= 0 {
		return mcp.NewToolResultError("top must be a positive number"), nil
	}

	items, err := t.svc.QueryWorkItems(ctx, f, top)
	if err != nil {
		return toolError(err), nil
	}

	if len(items) == 0 {
		return mcp.NewToolResultText("No work items match the filter."), nil
	}

	response := fmt.Sprintf("# Work Items\n\n**Matches:** %d\n\n%s", len(items), workItemTable(items))
	if len(items) == top {
		response += fmt.Sprintf("\nShowing the first %d. Narrow the filter or raise `top` to see more.\n", top)
	}
	return mcp.NewToolResultText(response), nil
}
