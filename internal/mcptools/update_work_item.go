package mcptools

import (
	"context"
	"fmt"

	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/mark3labs/mcp-go/mcp"
)

// UpdateWorkItemTool handles the update_work_item MCP tool.
type UpdateWorkItemTool struct {
	svc WorkItemService
}

// NewUpdateWorkItemTool creates an UpdateWorkItemTool.
func NewUpdateWorkItemTool(svc WorkItemService) *UpdateWorkItemTool {
	return &UpdateWorkItemTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateWorkItemTool) Definition() mcp.Tool {
	return mcp.NewTool("update_work_item",
		mcp.WithDescription(
			"Change fields of an Azure DevOps work item or add a discussion comment. "+
				"Only the given arguments are changed.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Work item ID."),
		),
		mcp.WithString("state",
			mcp.Description("New state, e.g. 'Active' or 'Resolved'."),
		),
		mcp.WithString("title",
			mcp.Description("New title."),
		),
		mcp.WithString("assigned_to",
			mcp.Description("New assignee (display name or email). Use an empty string to leave unchanged."),
		),
		mcp.WithNumber("priority",
			mcp.Description("New priority, 1 (highest) to 4."),
		),
		mcp.WithString("comment",
			mcp.Description("Comment to add to the discussion."),
		),
	)
}

// Handle processes the update_work_item tool call.
func (t *UpdateWorkItemTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id must be a positive work item ID"), nil
	}

	var ops []azdo.PatchOp
	if v := req.GetString("state", ""); v != "" {
		ops = append(ops, azdo.SetField(azdo.FieldState, v))
	}
	if v := req.GetString("title", ""); v != "" {
		ops = append(ops, azdo.SetField(azdo.FieldTitle, v))
	}
	if v := req.GetString("assigned_to", ""); v != "" {
		ops = append(ops, azdo.SetField(azdo.FieldAssignedTo, v))
	}
	if p := intArg(req, "priority", 0); p != 0 {
		if p < 1 || p > 4 {
			return mcp.NewToolResultError("priority must be between 1 and 4"), nil
		}
		ops = append(ops, azdo.SetField(azdo.FieldPriority, p))
	}
	if v := req.GetString("comment", ""); v != "" {
		ops = append(ops, azdo.AddComment(v))
	}
	if len(ops) == 0 {
		return mcp.NewToolResultError("Nothing to update. Provide at least one of state, title, assigned_to, priority or comment."), nil
	}

	wi, err := t.svc.UpdateWorkItem(ctx, id, ops)
	if err != nil {
		return toolError(err), nil
	}

	response := fmt.Sprintf(
		"Updated %s %d to revision %d.\n\n"+
			"**Title:** %s\n"+
			"**State:** %s\n"+
			"**Assigned To:** %s\n",
		wi.Type(), wi.ID, wi.Rev, wi.Title(), wi.State(), cell(wi.AssignedTo()),
	)
	return mcp.NewToolResultText(response), nil
}
