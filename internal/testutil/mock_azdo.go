// Package testutil provides testing utilities for the Azure DevOps client.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Organization is the organization segment every mock URL starts with.
const Organization = "contoso"

// MockResponse defines the behavior for one mock response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request received by the mock.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Header        http.Header
	Body          string
	At            time.Time
}

// MockAzDO is a configurable mock Azure DevOps server for testing.
type MockAzDO struct {
	server    *httptest.Server
	mu        sync.Mutex
	handlers  map[string]http.HandlerFunc
	sequences map[string][]MockResponse
	requests  []RecordedRequest
}

// NewMockAzDO creates and starts a mock server.
func NewMockAzDO() *MockAzDO {
	mock := &MockAzDO{
		handlers:  make(map[string]http.HandlerFunc),
		sequences: make(map[string][]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Header:        r.Header.Clone(),
			Body:          string(body),
			At:            time.Now(),
		})
		handler, hasHandler := mock.handlers[r.URL.Path]
		resp, hasSeq := mock.nextLocked(r.URL.Path)
		mock.mu.Unlock()

		switch {
		case hasHandler:
			handler(w, r)
		case hasSeq:
			writeResponse(w, resp)
		default:
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	}))

	return mock
}

// URL returns the mock server root.
func (m *MockAzDO) URL() string {
	return m.server.URL
}

// OrgURL returns the organization URL clients should use as their base.
func (m *MockAzDO) OrgURL() string {
	return m.server.URL + "/" + Organization
}

// Close shuts down the mock server.
func (m *MockAzDO) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for an absolute request path.
func (m *MockAzDO) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse answers every request to path with resp.
func (m *MockAzDO) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence answers requests to path with the given responses in order; the
// last one repeats.
func (m *MockAzDO) SetSequence(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = resps
}

// OrgPath prefixes p with the organization segment.
func OrgPath(p string) string {
	return "/" + Organization + "/" + strings.TrimPrefix(p, "/")
}

// Requests returns a copy of every request received so far.
func (m *MockAzDO) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsFor returns the requests received for path.
func (m *MockAzDO) RequestsFor(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockAzDO) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockAzDO) nextLocked(path string) (MockResponse, bool) {
	seq, ok := m.sequences[path]
	if !ok || len(seq) == 0 {
		return MockResponse{}, false
	}
	resp := seq[0]
	if len(seq) > 1 {
		m.sequences[path] = seq[1:]
	}
	return resp, true
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewRateLimitResponse creates a 429 response. An empty retryAfter omits the header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Request was blocked due to exceeding usage of resource 'Core'."}`,
		Headers: map[string]string{
			"X-RateLimit-Resource":  "Core",
			"X-RateLimit-Limit":     "200",
			"X-RateLimit-Remaining": "0",
		},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"message":"The service is temporarily unavailable."}`,
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message":"TF400813: The user is not authorized to access this resource."}`,
	}
}

// NewNotFoundResponse creates a 404 response with an Azure DevOps error body.
func NewNotFoundResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message":"` + message + `","typeKey":"WorkItemUnauthorizedAccessException"}`,
	}
}

// NewThrottledResponse creates a 200 response carrying service throttling headers.
func NewThrottledResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-RateLimit-Resource":  "Core",
			"X-RateLimit-Delay":     "0.5",
			"X-RateLimit-Limit":     "200",
			"X-RateLimit-Remaining": "12",
		},
	}
}
