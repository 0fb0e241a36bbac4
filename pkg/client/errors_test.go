package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Is(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("list work items: %w", &APIError{
		Kind:     ErrTransientNetworkFailure,
		Class:    ErrorClassNetwork,
		Method:   "GET",
		Path:     "_apis/projects",
		Attempts: 4,
		Err:      cause,
	})

	if !errors.Is(err, ErrTransientNetworkFailure) {
		t.Error("expected errors.Is to match the kind sentinel")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is to match the underlying cause")
	}
	if errors.Is(err, ErrPermanentRequestFailure) {
		t.Error("unexpected match for a different kind")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected errors.As to find *APIError")
	}
	if apiErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", apiErr.Attempts)
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		contains []string
	}{
		{
			name: "status and message",
			err: &APIError{
				Kind:       ErrPermanentRequestFailure,
				StatusCode: 404,
				Method:     "GET",
				Path:       "Fabrikam/_apis/wit/workitems/42",
				Message:    "TF401232: Work item 42 does not exist",
				Attempts:   1,
			},
			contains: []string{"azdo GET Fabrikam/_apis/wit/workitems/42", "permanent request failure", "status 404", "1 attempts", "TF401232"},
		},
		{
			name: "network cause without status",
			err: &APIError{
				Kind:     ErrTransientNetworkFailure,
				Method:   "POST",
				Path:     "_apis/wit/wiql",
				Attempts: 4,
				Err:      errors.New("connection refused"),
			},
			contains: []string{"transient network failure", "(4 attempts)", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestServiceMessage(t *testing.T) {
	long := strings.Repeat("x", 300)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"json message", `{"$id":"1","message":"VS403403: Access denied","typeKey":"AccessCheckException"}`, "VS403403: Access denied"},
		{"json without message", `{"error":"nope"}`, `{"error":"nope"}`},
		{"plain text", "  Bad Gateway \n", "Bad Gateway"},
		{"truncated", long, strings.Repeat("x", 256) + "..."},
		{"truncated on rune boundary", "x" + strings.Repeat("é", 200), "x" + strings.Repeat("é", 127) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serviceMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("serviceMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
