package cmd

import (
	"github.com/Sternrassler/azdo-client/internal/server"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Azure DevOps tools over MCP stdio",
	Long: `Serve the Azure DevOps tools to an MCP client over stdin/stdout.

Logs go to stderr; stdout carries only JSON-RPC.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		server.Version = versionInfo.Version
		s := server.New(sess.service, sess.dispatcher)

		sess.logger.Info().Str("version", versionInfo.Version).Msg("Serving MCP over stdio")
		return mcpserver.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
