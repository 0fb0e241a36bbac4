package mcptools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// GetWorkItemsTool handles the get_work_items MCP tool.
// Large ID lists are fetched in batches behind the scenes.
type GetWorkItemsTool struct {
	svc WorkItemService
}

// NewGetWorkItemsTool creates a GetWorkItemsTool.
func NewGetWorkItemsTool(svc WorkItemService) *GetWorkItemsTool {
	return &GetWorkItemsTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *GetWorkItemsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_work_items",
		mcp.WithDescription(
			"Fetch Azure DevOps work items by ID. With a single ID every field is shown; "+
				"with several a summary table is returned.",
		),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated work item IDs, e.g. '42,43,1001'."),
		),
		mcp.WithString("fields",
			mcp.Description("Comma-separated field reference names to fetch, e.g. 'System.Title,System.Tags'."),
		),
	)
}

// Handle processes the get_work_items tool call.
func (t *GetWorkItemsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := idsArg(req, "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids is required"), nil
	}

	items, err := t.svc.GetWorkItems(ctx, ids, listArg(req, "fields"))
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultError("None of the requested work items exist or are visible to this account."), nil
	}

	if len(ids) == 1 {
		wi := items[0]
		keys := make([]string, 0, len(wi.Fields))
		for k := range wi.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s %d: %s\n\n", wi.Type(), wi.ID, wi.Title())
		fmt.Fprintf(&sb, "**Revision:** %d\n\n", wi.Rev)
		sb.WriteString("| Field | Value |\n|-------|-------|\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "| %s | %s |\n", k, cell(wi.String(k)))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}

	response := fmt.Sprintf("# Work Items\n\n**Found:** %d of %d\n\n%s", len(items), len(ids), workItemTable(items))
	return mcp.NewToolResultText(response), nil
}
