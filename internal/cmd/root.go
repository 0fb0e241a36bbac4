// Package cmd implements the azdo-bridge command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool

	// Version info set by main package
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "azdo-bridge",
	Short: "Rate-limited Azure DevOps bridge for agents and scripts",
	Long: `azdo-bridge funnels Azure DevOps REST calls through one rate-limited,
retrying request pipeline.

It runs as an MCP server (mcp), as an HTTP pass-through (proxy), or answers
one-off work item queries (query). Configuration comes from AZDO_* environment
variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}
