// Package proxy serves an HTTP pass-through that funnels arbitrary Azure DevOps
// REST calls through the shared dispatcher, so scripts and dashboards draw on the
// same rate budget as the MCP tools.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds request bodies forwarded upstream.
const maxBodyBytes = 10 << 20

// Dispatcher is the part of *client.Dispatcher the proxy uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, ep client.Endpoint) (*client.Response, error)
	Stats() client.Stats
}

// Server is the proxy HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	addr   string
	d      Dispatcher
	logger zerolog.Logger
}

// New creates a proxy server. gatherer backs /metrics; nil uses the default registry.
func New(addr string, d Dispatcher, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router: chi.NewRouter(),
		addr:   addr,
		d:      d,
		logger: log.With().Str("component", "proxy").Logger(),
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(requestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", healthHandler)
	s.router.Get("/ready", s.readyHandler)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router.HandleFunc("/azdo/*", s.forwardHandler)

	return s
}

// Handler exposes the router for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting Azure DevOps proxy")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down Azure DevOps proxy")
	return s.server.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	stats := s.d.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":     stats.State.String(),
		"queued":    stats.Queued,
		"deferred":  stats.Deferred,
		"in_flight": stats.InFlight,
	})
}

// forwardedRequestHeaders are passed upstream; everything else, notably
// Authorization, comes from the dispatcher.
var forwardedRequestHeaders = []string{"Content-Type", "If-Match", "If-None-Match"}

// hopHeaders are not copied back to the caller.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Set-Cookie":        true,
}

// forwardHandler maps /azdo/{path} onto {organization}/{path}.
func (s *Server) forwardHandler(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		http.Error(w, "missing Azure DevOps path", http.StatusBadRequest)
		return
	}
	if !relativePath(path) {
		s.logger.Warn().
			Str("request_id", RequestIDFrom(r.Context())).
			Str("path", path).
			Msg("Rejected absolute URL in proxied path")
		http.Error(w, "path must be relative to the organization", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ep := client.Endpoint{
		Method: r.Method,
		Path:   path,
		Query:  r.URL.Query(),
		Header: http.Header{},
		Body:   body,
	}
	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			ep.Header.Set(h, v)
		}
	}

	resp, err := s.d.Dispatch(r.Context(), ep)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	for key, values := range resp.Header {
		if hopHeaders[key] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// relativePath reports whether path stays under the organization URL. Absolute
// and scheme-relative URLs are refused so the credential never leaves the organization.
func relativePath(path string) bool {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return false
	}
	u, err := url.Parse(path)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// writeError maps terminal pipeline errors onto proxy responses. Permanent
// failures pass the service's status and body through unchanged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && errors.Is(err, client.ErrPermanentRequestFailure) && len(apiErr.Body) > 0 {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(apiErr.StatusCode)
		_, _ = w.Write(apiErr.Body)
		return
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, client.ErrHostNotAllowed):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrPermanentRequestFailure) && apiErr != nil && apiErr.StatusCode > 0:
		status = apiErr.StatusCode
	case errors.Is(err, client.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, client.ErrTransientNetworkFailure) && errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, client.ErrDispatcherClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// The caller went away; nobody reads this.
		return
	}

	s.logger.Warn().
		Err(err).
		Str("request_id", RequestIDFrom(r.Context())).
		Int("status", status).
		Msg("Proxied call failed")

	http.Error(w, strings.TrimSpace(err.Error()), status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", RequestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
