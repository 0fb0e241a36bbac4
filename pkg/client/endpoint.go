package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Endpoint describes one outbound call. The dispatcher treats Body as opaque bytes.
type Endpoint struct {
	Method string

	// Path is relative to the organization URL ("MyProject/_apis/wit/wiql"),
	// or an absolute URL for calls to other hosts (vsrm, vssps).
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the payload of a settled call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// JSONEndpoint builds an endpoint whose body is v marshalled as JSON.
func JSONEndpoint(method, path string, v any) (Endpoint, error) {
	ep := Endpoint{Method: method, Path: path, Header: http.Header{}}
	if v == nil {
		return ep, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return Endpoint{}, fmt.Errorf("marshal request body: %w", err)
	}
	ep.Body = body
	ep.Header.Set("Content-Type", "application/json")
	return ep, nil
}
