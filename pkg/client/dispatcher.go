package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/metrics"
	"github.com/Sternrassler/azdo-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the position of the drain loop.
type State int

const (
	StateIdle State = iota
	StateDraining
	StateWaitingForSlot
	StateWaitingForBackoff
	StateWaitingForAuth
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateWaitingForSlot:
		return "waiting_for_slot"
	case StateWaitingForBackoff:
		return "waiting_for_backoff"
	case StateWaitingForAuth:
		return "waiting_for_auth"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the dispatcher.
type Stats struct {
	State    State
	Queued   int
	Deferred int
	InFlight int
}

type callResult struct {
	resp *Response
	err  error
}

// pendingCall is owned by the dispatcher from enqueue until it settles.
type pendingCall struct {
	id        string
	ctx       context.Context
	endpoint  Endpoint
	retries   int
	attempts  int
	refreshed bool
	result    chan callResult
	settled   atomic.Bool
}

// settle delivers the terminal result. Only the first call has any effect.
func (c *pendingCall) settle(resp *Response, err error) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.result <- callResult{resp: resp, err: err}
	return true
}

// Dispatcher is the single choke point for outbound calls.
type Dispatcher struct {
	cfg        Config
	baseURL    *url.URL
	auth       AuthProvider
	limiter    ratelimit.Limiter
	policy     RetryPolicy
	httpClient *http.Client
	metrics    *metrics.Pipeline
	logger     zerolog.Logger

	mu sync.Mutex
	// queue head is index 0; the first retryHead entries are promoted retries.
	queue      []*pendingCall
	retryHead  int
	deferred   map[*pendingCall]*time.Timer
	inFlight   int
	refreshing int
	slotWait   bool
	draining   bool
	closed     bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Dispatch enqueues a call at the tail of the queue and blocks until it settles or
// ctx is done. A ctx that ends before execution removes the call without spending budget.
func (d *Dispatcher) Dispatch(ctx context.Context, ep Endpoint) (*Response, error) {
	call := &pendingCall{
		id:       uuid.NewString(),
		ctx:      ctx,
		endpoint: ep,
		result:   make(chan callResult, 1),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	d.queue = append(d.queue, call)
	d.metrics.QueueDepth.Set(float64(len(d.queue)))
	start := !d.draining
	d.draining = true
	d.mu.Unlock()

	d.logger.Debug().
		Str("call_id", call.id).
		Str("method", ep.Method).
		Str("path", ep.Path).
		Msg("Call queued")

	d.resume(start)

	select {
	case res := <-call.result:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DispatchJSON dispatches ep and decodes the JSON response into out (if non-nil).
func (d *Dispatcher) DispatchJSON(ctx context.Context, ep Endpoint, out any) error {
	resp, err := d.Dispatch(ctx, ep)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// State reports where the drain loop currently is.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Stats returns a snapshot of queue, deferred and in-flight counts.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		State:    d.stateLocked(),
		Queued:   len(d.queue),
		Deferred: len(d.deferred),
		InFlight: d.inFlight,
	}
}

func (d *Dispatcher) stateLocked() State {
	switch {
	case !d.draining:
		return StateIdle
	case d.refreshing > 0:
		return StateWaitingForAuth
	case d.slotWait:
		return StateWaitingForSlot
	case len(d.queue) == 0 && d.inFlight == 0 && len(d.deferred) > 0:
		return StateWaitingForBackoff
	default:
		return StateDraining
	}
}

// Close stops accepting calls and rejects queued and deferred ones with
// ErrDispatcherClosed. Calls already executing finish their current attempt.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	pending := d.queue
	d.queue = nil
	d.retryHead = 0
	for call, timer := range d.deferred {
		timer.Stop()
		pending = append(pending, call)
	}
	d.deferred = make(map[*pendingCall]*time.Timer)
	d.metrics.QueueDepth.Set(0)
	d.metrics.DeferredCalls.Set(0)
	d.mu.Unlock()

	d.cancel()
	for _, call := range pending {
		call.settle(nil, ErrDispatcherClosed)
	}

	d.logger.Info().Int("rejected", len(pending)).Msg("Dispatcher closed")
	return nil
}

// drain is the single drain loop. It exits once the queue, deferred set and
// in-flight count are all empty; the next Dispatch starts a new one.
func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.closed {
			d.draining = false
			d.mu.Unlock()
			return
		}
		d.dropCancelledLocked()

		if len(d.queue) == 0 {
			if len(d.deferred) == 0 && d.inFlight == 0 {
				d.draining = false
				d.mu.Unlock()
				d.logger.Debug().Msg("Queue drained")
				return
			}
			d.mu.Unlock()
			d.waitForWake()
			continue
		}

		if d.inFlight >= d.cfg.Concurrency {
			d.mu.Unlock()
			d.waitForWake()
			continue
		}
		d.mu.Unlock()

		// Admission runs unlocked: a shared limiter talks to Redis.
		if !d.limiter.CanExecute(d.ctx) {
			d.waitForSlot()
			continue
		}

		d.mu.Lock()
		if d.closed || len(d.queue) == 0 {
			d.mu.Unlock()
			continue
		}
		call := d.popLocked()
		d.inFlight++
		d.metrics.InFlightCalls.Set(float64(d.inFlight))
		d.mu.Unlock()

		d.limiter.RecordExecution(d.ctx)
		go d.execute(call)
	}
}

// dropCancelledLocked settles queued calls whose caller already gave up.
func (d *Dispatcher) dropCancelledLocked() {
	kept := d.queue[:0]
	retryHead := 0
	for i, call := range d.queue {
		if err := call.ctx.Err(); err != nil {
			call.settle(nil, err)
			continue
		}
		if i < d.retryHead {
			retryHead++
		}
		kept = append(kept, call)
	}
	for i := len(kept); i < len(d.queue); i++ {
		d.queue[i] = nil
	}
	d.queue = kept
	d.retryHead = retryHead
	d.metrics.QueueDepth.Set(float64(len(d.queue)))
}

func (d *Dispatcher) popLocked() *pendingCall {
	call := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	if d.retryHead > 0 {
		d.retryHead--
	}
	d.metrics.QueueDepth.Set(float64(len(d.queue)))
	return call
}

// requeueFront puts a retried call ahead of fresh work but behind retries that
// were promoted earlier and have not run yet.
func (d *Dispatcher) requeueFront(call *pendingCall) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		call.settle(nil, ErrDispatcherClosed)
		return
	}
	start := d.insertRetryLocked(call)
	d.mu.Unlock()

	d.resume(start)
}

// insertRetryLocked inserts call after the promoted retries and reports whether
// a drain loop has to be started.
func (d *Dispatcher) insertRetryLocked(call *pendingCall) bool {
	d.queue = append(d.queue, nil)
	copy(d.queue[d.retryHead+1:], d.queue[d.retryHead:])
	d.queue[d.retryHead] = call
	d.retryHead++
	d.metrics.QueueDepth.Set(float64(len(d.queue)))

	start := !d.draining
	d.draining = true
	return start
}

func (d *Dispatcher) resume(start bool) {
	if start {
		go d.drain()
		return
	}
	d.signal()
}

// deferCall holds a call outside the queue until its backoff elapses.
func (d *Dispatcher) deferCall(call *pendingCall, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		call.settle(nil, ErrDispatcherClosed)
		return
	}
	d.deferred[call] = time.AfterFunc(delay, func() { d.promote(call) })
	d.metrics.DeferredCalls.Set(float64(len(d.deferred)))
}

// promote moves a deferred call to the front of the queue once its delay is over.
func (d *Dispatcher) promote(call *pendingCall) {
	d.mu.Lock()
	if _, ok := d.deferred[call]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.deferred, call)
	d.metrics.DeferredCalls.Set(float64(len(d.deferred)))
	start := d.insertRetryLocked(call)
	d.mu.Unlock()

	d.resume(start)
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) waitForWake() {
	select {
	case <-d.wake:
	case <-d.ctx.Done():
	}
}

// minSlotWait keeps the loop from spinning when a shared limiter refuses admission
// but cannot say when the next slot frees.
const minSlotWait = 10 * time.Millisecond

func (d *Dispatcher) waitForSlot() {
	wait := d.limiter.TimeUntilNextSlot(d.ctx)
	if wait <= 0 {
		wait = minSlotWait
	}

	d.mu.Lock()
	d.slotWait = true
	queued := len(d.queue)
	d.mu.Unlock()

	d.metrics.RateLimitWaitsTotal.Inc()
	d.metrics.RateLimitWaitSeconds.Observe(wait.Seconds())
	d.logger.Warn().
		Dur("delay", wait).
		Int("queued", queued).
		Msg("Rate window full, waiting for next slot")

	timer := time.NewTimer(wait)
	select {
	case <-timer.C:
	case <-d.ctx.Done():
		timer.Stop()
	}

	d.mu.Lock()
	d.slotWait = false
	d.mu.Unlock()
}

// execute runs one attempt of call and acts on the classifier's decision.
func (d *Dispatcher) execute(call *pendingCall) {
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.metrics.InFlightCalls.Set(float64(d.inFlight))
		d.mu.Unlock()
		d.signal()
	}()

	call.attempts++
	resp, err := d.attempt(call)
	if ctxErr := call.ctx.Err(); ctxErr != nil {
		call.settle(nil, ctxErr)
		return
	}

	var buildErr *requestBuildError
	if errors.As(err, &buildErr) {
		call.settle(nil, &APIError{
			Kind:     ErrPermanentRequestFailure,
			Class:    ErrorClassClient,
			Method:   call.endpoint.Method,
			Path:     call.endpoint.Path,
			Attempts: call.attempts,
			Err:      buildErr.err,
		})
		return
	}

	outcome := ClassifyAttempt(resp, err)
	d.observe(call, outcome)

	decision := d.policy.Decide(outcome, call.retries, call.refreshed)
	switch decision.Action {
	case ActionResolve:
		if call.attempts > 1 {
			d.logger.Info().
				Str("call_id", call.id).
				Int("attempts", call.attempts).
				Msg("Call succeeded after retry")
		}
		call.settle(outcome.Response, nil)

	case ActionRetryAfter:
		class := string(outcome.Class())
		d.metrics.RetriesTotal.WithLabelValues(class).Inc()
		d.metrics.RetryBackoffSeconds.WithLabelValues(class).Observe(decision.Delay.Seconds())
		d.logger.Warn().
			Str("call_id", call.id).
			Str("path", call.endpoint.Path).
			Str("error_class", class).
			Int("retries", call.retries).
			Dur("delay", decision.Delay).
			Msg("Retrying call after backoff")
		call.retries++
		d.deferCall(call, decision.Delay)

	case ActionRefreshAuth:
		d.refreshAndRequeue(call)

	default:
		d.reject(call, outcome, decision.Kind)
	}
}

func (d *Dispatcher) reject(call *pendingCall, outcome Outcome, kind error) {
	class := outcome.Class()
	if kind == ErrRateLimitExceeded || kind == ErrTransientNetworkFailure {
		d.metrics.RetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	}

	apiErr := &APIError{
		Kind:       kind,
		Class:      class,
		StatusCode: outcome.StatusCode,
		Method:     call.endpoint.Method,
		Path:       call.endpoint.Path,
		Attempts:   call.attempts,
		Err:        outcome.Err,
	}
	if outcome.Response != nil {
		apiErr.Body = outcome.Response.Body
		apiErr.Message = serviceMessage(outcome.Response.Body)
	}

	d.logger.Error().
		Str("call_id", call.id).
		Str("path", call.endpoint.Path).
		Int("status", outcome.StatusCode).
		Str("error_class", string(class)).
		Int("attempts", call.attempts).
		Msg("Call failed")

	call.settle(nil, apiErr)
}

func (d *Dispatcher) refreshAndRequeue(call *pendingCall) {
	d.mu.Lock()
	d.refreshing++
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(call.ctx, d.cfg.CallTimeout)
	err := d.auth.Refresh(ctx)
	cancel()

	d.mu.Lock()
	d.refreshing--
	d.mu.Unlock()

	call.refreshed = true
	if err != nil {
		d.metrics.AuthRefreshesTotal.WithLabelValues("failure").Inc()
		d.logger.Error().Err(err).Str("call_id", call.id).Msg("Credential refresh failed")
		call.settle(nil, &APIError{
			Kind:       ErrAuthenticationFailed,
			Class:      ErrorClassAuth,
			StatusCode: http.StatusUnauthorized,
			Method:     call.endpoint.Method,
			Path:       call.endpoint.Path,
			Attempts:   call.attempts,
			Err:        err,
		})
		return
	}

	d.metrics.AuthRefreshesTotal.WithLabelValues("success").Inc()
	d.logger.Info().Str("call_id", call.id).Msg("Credential refreshed, retrying call")
	d.requeueFront(call)
}

type requestBuildError struct{ err error }

func (e *requestBuildError) Error() string { return "build request: " + e.err.Error() }
func (e *requestBuildError) Unwrap() error { return e.err }

// attempt performs the HTTP round trip for one try of call.
func (d *Dispatcher) attempt(call *pendingCall) (*Response, error) {
	ctx, cancel := context.WithTimeout(call.ctx, d.cfg.CallTimeout)
	defer cancel()

	req, err := d.newRequest(ctx, call)
	if err != nil {
		return nil, &requestBuildError{err: err}
	}

	d.logger.Debug().
		Str("call_id", call.id).
		Str("method", req.Method).
		Str("path", call.endpoint.Path).
		Int("attempt", call.attempts).
		Msg("Executing call")

	start := time.Now()
	httpResp, err := d.httpClient.Do(req)
	d.metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && call.ctx.Err() == nil {
			return nil, fmt.Errorf("attempt timed out after %s: %w", d.cfg.CallTimeout, err)
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (d *Dispatcher) newRequest(ctx context.Context, call *pendingCall) (*http.Request, error) {
	ep := call.endpoint

	target, err := d.resolve(ep)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(ep.Body) > 0 {
		body = bytes.NewReader(ep.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for key, values := range ep.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if len(ep.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("X-TFS-Session", call.id)

	// Read fresh on every attempt so a refresh is picked up by the retry.
	if h := d.auth.AuthHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	return req, nil
}

// resolve joins a relative path onto the organization URL and adds api-version.
func (d *Dispatcher) resolve(ep Endpoint) (string, error) {
	var u *url.URL
	if strings.HasPrefix(ep.Path, "http://") || strings.HasPrefix(ep.Path, "https://") {
		parsed, err := url.Parse(ep.Path)
		if err != nil {
			return "", fmt.Errorf("parse endpoint url: %w", err)
		}
		if !d.allowedHost(parsed) {
			return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Host)
		}
		u = parsed
	} else {
		path, rawQuery, _ := strings.Cut(ep.Path, "?")
		u = d.baseURL.JoinPath(path)
		u.RawQuery = rawQuery
	}

	q := u.Query()
	for key, values := range ep.Query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	if d.cfg.APIVersion != "" && q.Get("api-version") == "" {
		q.Set("api-version", d.cfg.APIVersion)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// serviceDomains are the Azure DevOps hosts besides the organization URL that
// may receive the credential (vsrm, vssps, almsearch, legacy visualstudio.com).
var serviceDomains = []string{".dev.azure.com", ".visualstudio.com"}

// allowedHost reports whether an absolute endpoint URL may carry the credential.
// The organization host is allowed on its own scheme; other hosts need https.
func (d *Dispatcher) allowedHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if host == strings.ToLower(d.baseURL.Hostname()) && u.Port() == d.baseURL.Port() {
		return u.Scheme == d.baseURL.Scheme || u.Scheme == "https"
	}
	if u.Scheme != "https" || u.Port() != "" {
		return false
	}
	if host == "dev.azure.com" {
		return true
	}
	for _, domain := range serviceDomains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}

// observe records metrics and service throttling state for one attempt.
func (d *Dispatcher) observe(call *pendingCall, outcome Outcome) {
	method := strings.ToUpper(call.endpoint.Method)
	if method == "" {
		method = http.MethodGet
	}

	status := "network_error"
	if outcome.StatusCode > 0 {
		status = strconv.Itoa(outcome.StatusCode)
	}
	d.metrics.RequestsTotal.WithLabelValues(method, status).Inc()

	if outcome.Kind != OutcomeSuccess {
		d.metrics.ErrorsTotal.WithLabelValues(string(outcome.Class())).Inc()
	}

	if outcome.Response == nil {
		return
	}

	state, err := ratelimit.ParseServiceState(outcome.Response.Header)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Ignoring malformed throttling headers")
		return
	}
	if state == nil {
		return
	}

	if state.Limit > 0 {
		d.metrics.ServiceRateRemaining.Set(state.Remaining)
	}
	if state.IsDelayed() {
		d.metrics.ServiceThrottleDelays.Observe(state.Delay.Seconds())
	}
	if state.IsDelayed() || state.NearLimit() {
		d.logger.Warn().
			Str("resource", state.Resource).
			Dur("service_delay", state.Delay).
			Float64("remaining", state.Remaining).
			Float64("limit", state.Limit).
			Msg("Azure DevOps is throttling requests")
	}
}
