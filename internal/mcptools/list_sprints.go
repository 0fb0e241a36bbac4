package mcptools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/mark3labs/mcp-go/mcp"
)

// ListSprintsTool handles the list_sprints MCP tool.
type ListSprintsTool struct {
	svc SprintService
}

// NewListSprintsTool creates a ListSprintsTool.
func NewListSprintsTool(svc SprintService) *ListSprintsTool {
	return &ListSprintsTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *ListSprintsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_sprints",
		mcp.WithDescription("List a team's sprints (iterations) with their dates."),
		mcp.WithString("project",
			mcp.Description("Project name. Defaults to the configured project."),
		),
		mcp.WithString("team",
			mcp.Description("Team name. Defaults to the configured team."),
		),
		mcp.WithString("timeframe",
			mcp.Description("One of 'current', 'past', 'future' or 'all' (default)."),
		),
	)
}

// Handle processes the list_sprints tool call.
func (t *ListSprintsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeframe := strings.ToLower(req.GetString("timeframe", "all"))
	switch timeframe {
	case "all", "":
		timeframe = azdo.TimeframeAll
	case azdo.TimeframeCurrent, azdo.TimeframePast, azdo.TimeframeFuture:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Unknown timeframe %q. Use current, past, future or all.", timeframe)), nil
	}

	its, err := t.svc.ListIterations(ctx, req.GetString("project", ""), req.GetString("team", ""), timeframe)
	if err != nil {
		return toolError(err), nil
	}
	if len(its) == 0 {
		return mcp.NewToolResultText("No sprints found."), nil
	}

	var sb strings.Builder
	sb.WriteString("# Sprints\n\n")
	sb.WriteString("| Name | Path | Start | Finish | Timeframe |\n")
	sb.WriteString("|------|------|-------|--------|-----------|\n")
	for _, it := range its {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			cell(it.Name), cell(it.Path),
			date(it.Attributes.StartDate), date(it.Attributes.FinishDate),
			cell(it.Attributes.TimeFrame))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func date(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.Format("2006-01-02")
}
