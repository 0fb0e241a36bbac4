package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/Sternrassler/azdo-client/pkg/wiql"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var queryFlags struct {
	project    string
	types      []string
	states     []string
	assignedTo string
	area       string
	current    bool
	tags       []string
	title      string
	since      string
	top        int
	output     string
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query work items",
	Long: `Query work items with a structured filter and print them.

--output wiql prints the generated WIQL without calling Azure DevOps.`,
	Example: `  azdo-bridge query --type Bug --state Active --assigned-to @Me
  azdo-bridge query --current-iteration --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(strings.TrimSpace(queryFlags.output))
		if format != "table" && format != "json" && format != "wiql" {
			return fmt.Errorf("unsupported output format: %s", queryFlags.output)
		}

		f := queryFilter()
		if format == "wiql" {
			fmt.Fprintln(cmd.OutOrStdout(), wiql.Build(f))
			return nil
		}

		sess, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		items, err := sess.service.QueryWorkItems(cmd.Context(), f, queryFlags.top)
		if err != nil {
			return err
		}

		if format == "json" {
			return writeWorkItemsJSON(cmd.OutOrStdout(), items)
		}
		writeWorkItemsTable(cmd.OutOrStdout(), items)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)

	fl := queryCmd.Flags()
	fl.StringVarP(&queryFlags.project, "project", "p", "", "project (defaults to AZDO_PROJECT)")
	fl.StringSliceVarP(&queryFlags.types, "type", "t", nil, "work item types, e.g. Bug,Task")
	fl.StringSliceVarP(&queryFlags.states, "state", "s", nil, "states, e.g. Active,New")
	fl.StringVar(&queryFlags.assignedTo, "assigned-to", "", "assignee name, email or @Me")
	fl.StringVar(&queryFlags.area, "area", "", "area path (includes children)")
	fl.BoolVar(&queryFlags.current, "current-iteration", false, "only the team's current sprint")
	fl.StringSliceVar(&queryFlags.tags, "tag", nil, "tags that must all be present")
	fl.StringVar(&queryFlags.title, "title", "", "title substring")
	fl.StringVar(&queryFlags.since, "changed-since", "", "date or macro, e.g. 2025-01-31 or \"@Today - 7\"")
	fl.IntVarP(&queryFlags.top, "top", "n", 50, "maximum number of work items")
	fl.StringVarP(&queryFlags.output, "output", "o", "table", "output format: table, json or wiql")
}

func queryFilter() wiql.Filter {
	return wiql.Filter{
		Project:          queryFlags.project,
		Types:            queryFlags.types,
		States:           queryFlags.states,
		AssignedTo:       queryFlags.assignedTo,
		AreaPath:         queryFlags.area,
		CurrentIteration: queryFlags.current,
		Tags:             queryFlags.tags,
		TitleContains:    queryFlags.title,
		ChangedSince:     queryFlags.since,
		Fields: []string{
			azdo.FieldID, azdo.FieldTitle, azdo.FieldState,
			azdo.FieldWorkItemType, azdo.FieldAssignedTo,
		},
	}
}

func writeWorkItemsTable(w io.Writer, items []azdo.WorkItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Type", "State", "Assigned To", "Title"})
	for _, wi := range items {
		t.AppendRow(table.Row{wi.ID, wi.Type(), wi.State(), wi.AssignedTo(), truncate(wi.Title(), 80)})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(items)})
	t.Render()
}

func writeWorkItemsJSON(w io.Writer, items []azdo.WorkItem) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
