// Package wiql assembles Work Item Query Language statements from structured filters.
//
// Build is a pure function: the dispatcher only ever sees the finished string
// inside a {"query": ...} body.
package wiql

import (
	"strings"
)

// DefaultFields are selected when a Filter names none.
var DefaultFields = []string{"System.Id", "System.Title", "System.State"}

// Filter describes a work item query. Zero-valued fields add no predicate.
type Filter struct {
	Project       string
	Types         []string
	States        []string
	ExcludeStates []string
	AssignedTo    string
	AreaPath      string

	// IterationPath matches the iteration and everything below it.
	IterationPath string

	// CurrentIteration restricts to the team's current sprint (@CurrentIteration).
	CurrentIteration bool

	Tags          []string
	TitleContains string
	ChangedSince  string // a date like 2025-01-31 or a macro like "@Today - 7"

	Fields  []string
	OrderBy []Order
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Build returns the WIQL statement for f.
func Build(f Filter) string {
	fields := f.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, field := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(column(field))
	}
	sb.WriteString(" FROM WorkItems")

	var where []string
	if f.Project != "" {
		where = append(where, column("System.TeamProject")+" = "+literal(f.Project))
	}
	if p := in("System.WorkItemType", f.Types); p != "" {
		where = append(where, p)
	}
	if p := in("System.State", f.States); p != "" {
		where = append(where, p)
	}
	if len(f.ExcludeStates) > 0 {
		where = append(where, column("System.State")+" NOT IN ("+list(f.ExcludeStates)+")")
	}
	if f.AssignedTo != "" {
		where = append(where, column("System.AssignedTo")+" = "+literal(f.AssignedTo))
	}
	if f.AreaPath != "" {
		where = append(where, column("System.AreaPath")+" UNDER "+literal(f.AreaPath))
	}
	switch {
	case f.CurrentIteration:
		where = append(where, column("System.IterationPath")+" = @CurrentIteration")
	case f.IterationPath != "":
		where = append(where, column("System.IterationPath")+" UNDER "+literal(f.IterationPath))
	}
	for _, tag := range f.Tags {
		where = append(where, column("System.Tags")+" CONTAINS "+literal(tag))
	}
	if f.TitleContains != "" {
		where = append(where, column("System.Title")+" CONTAINS "+literal(f.TitleContains))
	}
	if f.ChangedSince != "" {
		where = append(where, column("System.ChangedDate")+" >= "+literal(f.ChangedSince))
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	orders := f.OrderBy
	if len(orders) == 0 {
		orders = []Order{{Field: "System.ChangedDate", Desc: true}}
	}
	sb.WriteString(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(column(o.Field))
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	return sb.String()
}

func column(field string) string {
	field = strings.Trim(strings.TrimSpace(field), "[]")
	return "[" + field + "]"
}

func in(field string, values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return column(field) + " = " + literal(values[0])
	default:
		return column(field) + " IN (" + list(values) + ")"
	}
}

func list(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = literal(v)
	}
	return strings.Join(quoted, ", ")
}

// macros are emitted unquoted. Arithmetic suffixes like "@Today - 7" are allowed.
var macros = []string{"@me", "@today", "@currentiteration", "@project", "@startofday", "@startofweek", "@startofmonth"}

func isMacro(v string) bool {
	lower := strings.ToLower(strings.TrimSpace(v))
	for _, m := range macros {
		if lower == m {
			return true
		}
		if rest, ok := strings.CutPrefix(lower, m); ok && isOffset(rest) {
			return true
		}
	}
	return false
}

func isOffset(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '-' && s[0] != '+') {
		return false
	}
	digits := strings.TrimSpace(s[1:])
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// literal quotes v as a WIQL string, doubling embedded single quotes.
func literal(v string) string {
	if isMacro(v) {
		return strings.TrimSpace(v)
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
