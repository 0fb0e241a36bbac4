// Package server wires the Azure DevOps services into an MCP server instance.
// It is the composition root for the tools; no business logic lives here.
package server

import (
	"github.com/Sternrassler/azdo-client/internal/mcptools"
	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool registered. All tools share svc,
// and through it one dispatcher, so they draw on the same rate budget.
func New(svc *azdo.Service, status mcptools.StatusSource) *server.MCPServer {
	s := server.NewMCPServer(
		"azdo-bridge",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions(svc.Project())),
	)

	queryTool := mcptools.NewQueryWorkItemsTool(svc)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	getTool := mcptools.NewGetWorkItemsTool(svc)
	s.AddTool(getTool.Definition(), getTool.Handle)

	updateTool := mcptools.NewUpdateWorkItemTool(svc)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	sprintsTool := mcptools.NewListSprintsTool(svc)
	s.AddTool(sprintsTool.Definition(), sprintsTool.Handle)

	testCasesTool := mcptools.NewListTestCasesTool(svc)
	s.AddTool(testCasesTool.Definition(), testCasesTool.Handle)

	statusTool := mcptools.NewPipelineStatusTool(status)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s
}

func serverInstructions(project string) string {
	text := `Azure DevOps bridge. Every tool call goes through one rate-limited request
pipeline (200 calls per minute by default) that retries throttled and failed
calls on its own, so a slow answer usually means the pipeline is waiting, not
that something broke. Use pipeline_status to see what it is waiting for.

Prefer query_work_items with narrow filters over fetching large id lists.
get_work_items accepts up to a few thousand ids and fetches them in batches of 200.
update_work_item writes to Azure DevOps; confirm changes with the user first.`

	if project != "" {
		text += "\n\nDefault project: " + project + ". Pass project to target another one."
	}
	return text
}
