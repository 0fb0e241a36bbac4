package mcptools

import (
	"context"
	"fmt"

	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatusSource reports the request pipeline's state. *client.Dispatcher implements it.
type StatusSource interface {
	Stats() client.Stats
}

// PipelineStatusTool handles the pipeline_status MCP tool.
type PipelineStatusTool struct {
	src StatusSource
}

// NewPipelineStatusTool creates a PipelineStatusTool.
func NewPipelineStatusTool(src StatusSource) *PipelineStatusTool {
	return &PipelineStatusTool{src: src}
}

// Definition returns the MCP tool definition for registration.
func (t *PipelineStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("pipeline_status",
		mcp.WithDescription(
			"Show the state of the Azure DevOps request pipeline: whether it is idle, draining, "+
				"waiting for the rate window, backing off or refreshing credentials, and how many calls are pending. "+
				"Use it to explain slow responses.",
		),
	)
}

// Handle processes the pipeline_status tool call.
func (t *PipelineStatusTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s := t.src.Stats()

	hint := ""
	switch s.State {
	case client.StateWaitingForSlot:
		hint = "\nThe rate window is full. Calls resume as soon as older calls age out of the window.\n"
	case client.StateWaitingForBackoff:
		hint = "\nAzure DevOps answered with throttling or a transient error. Calls are backing off before retrying.\n"
	case client.StateWaitingForAuth:
		hint = "\nThe credential is being refreshed.\n"
	}

	response := fmt.Sprintf(
		"# Request Pipeline\n\n"+
			"**State:** %s\n"+
			"**Queued:** %d\n"+
			"**Backing off:** %d\n"+
			"**In flight:** %d\n"+
			"%s",
		s.State, s.Queued, s.Deferred, s.InFlight, hint,
	)
	return mcp.NewToolResultText(response), nil
}
