package azdo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/azdo-client/pkg/batch"
	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/Sternrassler/azdo-client/pkg/wiql"
)

// Common field reference names.
const (
	FieldID            = "System.Id"
	FieldTitle         = "System.Title"
	FieldState         = "System.State"
	FieldWorkItemType  = "System.WorkItemType"
	FieldAssignedTo    = "System.AssignedTo"
	FieldIterationPath = "System.IterationPath"
	FieldAreaPath      = "System.AreaPath"
	FieldDescription   = "System.Description"
	FieldTags          = "System.Tags"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"
)

// WorkItem is a work item as returned by the work item APIs.
type WorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url,omitempty"`
}

// String returns a field as text. Identity fields yield their display name.
func (w WorkItem) String(field string) string {
	switch v := w.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if name, ok := v["displayName"].(string); ok {
			return name
		}
		if name, ok := v["uniqueName"].(string); ok {
			return name
		}
	}
	return fmt.Sprint(w.Fields[field])
}

// Title returns System.Title.
func (w WorkItem) Title() string { return w.String(FieldTitle) }

// State returns System.State.
func (w WorkItem) State() string { return w.String(FieldState) }

// Type returns System.WorkItemType.
func (w WorkItem) Type() string { return w.String(FieldWorkItemType) }

// AssignedTo returns the assignee's display name.
func (w WorkItem) AssignedTo() string { return w.String(FieldAssignedTo) }

type wiqlResult struct {
	QueryType string `json:"queryType"`
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// QueryIDs runs the WIQL built from f and returns the matching IDs in result order.
// top limits the result; 0 leaves the service default.
func (s *Service) QueryIDs(ctx context.Context, f wiql.Filter, top int) ([]int, error) {
	project, err := s.project(f.Project)
	if err != nil {
		return nil, err
	}
	if f.Project == "" {
		f.Project = project
	}

	ep, err := client.JSONEndpoint(http.MethodPost, segments(project, "_apis/wit/wiql"), map[string]string{
		"query": wiql.Build(f),
	})
	if err != nil {
		return nil, err
	}
	if top > 0 {
		ep.Query = url.Values{"$top": {strconv.Itoa(top)}}
	}

	var res wiqlResult
	if err := s.do(ctx, ep, &res); err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}

	ids := make([]int, len(res.WorkItems))
	for i, ref := range res.WorkItems {
		ids[i] = ref.ID
	}
	return ids, nil
}

// QueryWorkItems runs the query built from f and fetches details for every hit.
func (s *Service) QueryWorkItems(ctx context.Context, f wiql.Filter, top int) ([]WorkItem, error) {
	ids, err := s.QueryIDs(ctx, f, top)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("matches", len(ids)).Msg("Work item query returned")
	if len(ids) == 0 {
		return []WorkItem{}, nil
	}
	return s.GetWorkItems(ctx, ids, f.Fields)
}

type batchRequest struct {
	IDs         []int    `json:"ids"`
	Fields      []string `json:"fields,omitempty"`
	ErrorPolicy string   `json:"errorPolicy"`
}

// GetWorkItems fetches work items by ID in chunks of at most MaxIDsPerBatch,
// preserving input order. IDs the caller cannot see are omitted.
func (s *Service) GetWorkItems(ctx context.Context, ids []int, fields []string) ([]WorkItem, error) {
	path := "_apis/wit/workitemsbatch"
	if s.opts.Project != "" {
		path = segments(s.opts.Project, path)
	}

	items, err := batch.FetchInChunks(ctx, ids, s.opts.MaxIDsPerBatch, func(ctx context.Context, chunk []int) ([]WorkItem, error) {
		ep, err := client.JSONEndpoint(http.MethodPost, path, batchRequest{
			IDs:         chunk,
			Fields:      fields,
			ErrorPolicy: "omit",
		})
		if err != nil {
			return nil, err
		}

		var res list[*WorkItem]
		if err := s.do(ctx, ep, &res); err != nil {
			return nil, err
		}

		out := make([]WorkItem, 0, len(res.Value))
		for _, wi := range res.Value {
			if wi != nil {
				out = append(out, *wi)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get work items: %w", err)
	}
	return items, nil
}

// GetWorkItem fetches one work item with its relations.
func (s *Service) GetWorkItem(ctx context.Context, id int) (*WorkItem, error) {
	ep := client.Endpoint{
		Method: http.MethodGet,
		Path:   "_apis/wit/workitems/" + strconv.Itoa(id),
		Query:  url.Values{"$expand": {"relations"}},
	}

	var wi WorkItem
	if err := s.do(ctx, ep, &wi); err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	return &wi, nil
}

// PatchOp is one JSON Patch operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// MarshalJSON sends value for every operation except remove, so "", 0 and
// false survive as real values.
func (op PatchOp) MarshalJSON() ([]byte, error) {
	if op.Op == "remove" {
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}{op.Op, op.Path})
	}

	type wire PatchOp
	return json.Marshal(wire(op))
}

// SetField returns an operation that sets a field.
func SetField(field string, value any) PatchOp {
	return PatchOp{Op: "add", Path: "/fields/" + field, Value: value}
}

// RemoveField returns an operation that clears a field.
func RemoveField(field string) PatchOp {
	return PatchOp{Op: "remove", Path: "/fields/" + field}
}

// AddComment returns an operation that appends to the work item history.
func AddComment(text string) PatchOp {
	return SetField("System.History", text)
}

// UpdateWorkItem applies ops to a work item and returns the new revision.
func (s *Service) UpdateWorkItem(ctx context.Context, id int, ops []PatchOp) (*WorkItem, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("update work item %d: no changes", id)
	}
	for _, op := range ops {
		if !strings.HasPrefix(op.Path, "/") {
			return nil, fmt.Errorf("update work item %d: invalid patch path %q", id, op.Path)
		}
	}

	ep, err := client.JSONEndpoint(http.MethodPatch, "_apis/wit/workitems/"+strconv.Itoa(id), ops)
	if err != nil {
		return nil, err
	}
	ep.Header.Set("Content-Type", "application/json-patch+json")

	var wi WorkItem
	if err := s.do(ctx, ep, &wi); err != nil {
		return nil, fmt.Errorf("update work item %d: %w", id, err)
	}

	s.logger.Info().Int("id", id).Int("rev", wi.Rev).Int("ops", len(ops)).Msg("Work item updated")
	return &wi, nil
}
