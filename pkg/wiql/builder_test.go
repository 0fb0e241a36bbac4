package wiql

import (
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "no predicates",
			filter: Filter{},
			want:   "SELECT [System.Id], [System.Title], [System.State] FROM WorkItems ORDER BY [System.ChangedDate] DESC",
		},
		{
			name: "project and single type",
			filter: Filter{
				Project: "Fabrikam",
				Types:   []string{"Bug"},
			},
			want: "SELECT [System.Id], [System.Title], [System.State] FROM WorkItems" +
				" WHERE [System.TeamProject] = 'Fabrikam' AND [System.WorkItemType] = 'Bug'" +
				" ORDER BY [System.ChangedDate] DESC",
		},
		{
			name: "states and assignee macro",
			filter: Filter{
				States:        []string{"Active", "New"},
				ExcludeStates: []string{"Removed"},
				AssignedTo:    "@Me",
			},
			want: "SELECT [System.Id], [System.Title], [System.State] FROM WorkItems" +
				" WHERE [System.State] IN ('Active', 'New') AND [System.State] NOT IN ('Removed')" +
				" AND [System.AssignedTo] = @Me" +
				" ORDER BY [System.ChangedDate] DESC",
		},
		{
			name: "current iteration wins over path",
			filter: Filter{
				IterationPath:    "Fabrikam\\Sprint 1",
				CurrentIteration: true,
			},
			want: "SELECT [System.Id], [System.Title], [System.State] FROM WorkItems" +
				" WHERE [System.IterationPath] = @CurrentIteration" +
				" ORDER BY [System.ChangedDate] DESC",
		},
		{
			name: "custom fields and order",
			filter: Filter{
				AreaPath:     "Fabrikam\\Web",
				ChangedSince: "@Today - 7",
				Fields:       []string{"System.Id", "[Microsoft.VSTS.Common.Priority]"},
				OrderBy:      []Order{{Field: "Microsoft.VSTS.Common.Priority"}, {Field: "System.Id", Desc: true}},
			},
			want: "SELECT [System.Id], [Microsoft.VSTS.Common.Priority] FROM WorkItems" +
				" WHERE [System.AreaPath] UNDER 'Fabrikam\\Web' AND [System.ChangedDate] >= @Today - 7" +
				" ORDER BY [Microsoft.VSTS.Common.Priority] ASC, [System.Id] DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.filter); got != tt.want {
				t.Errorf("Build() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestBuild_EscapesQuotes(t *testing.T) {
	got := Build(Filter{
		Project:       "O'Reilly",
		TitleContains: "can't login",
		Tags:          []string{"customer's"},
	})

	for _, want := range []string{
		"[System.TeamProject] = 'O''Reilly'",
		"[System.Title] CONTAINS 'can''t login'",
		"[System.Tags] CONTAINS 'customer''s'",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Build() = %q, missing %q", got, want)
		}
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Active", "'Active'"},
		{"@Me", "@Me"},
		{"@today", "@today"},
		{"@Today-30", "@Today-30"},
		{"@Today - x", "'@Today - x'"},
		{"@someone", "'@someone'"},
		{"2025-01-31", "'2025-01-31'"},
		{"", "''"},
	}

	for _, tt := range tests {
		if got := literal(tt.in); got != tt.want {
			t.Errorf("literal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
