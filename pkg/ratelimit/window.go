// Package ratelimit implements sliding-window admission control for Azure DevOps
// REST calls. The Window counts attempt timestamps inside a trailing interval and
// refuses admission once the configured maximum is reached. SharedWindow keeps the
// same log in Redis so several local processes honor one organization budget.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults observed for the Azure DevOps client.
const (
	DefaultMaxRequests = 200
	DefaultWindow      = 60 * time.Second
)

// Clock supplies the current time. Tests inject a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Limiter is the admission contract the dispatcher drains against.
type Limiter interface {
	// CanExecute prunes expired timestamps and reports whether another call fits in the window.
	// A limiter shared between processes may reserve the slot here.
	CanExecute(ctx context.Context) bool

	// RecordExecution appends the current time. Called once per attempt, whatever its outcome.
	RecordExecution(ctx context.Context)

	// TimeUntilNextSlot returns how long until a slot frees up, or 0 if one is free now.
	TimeUntilNextSlot(ctx context.Context) time.Duration
}

// Window is an in-process sliding window log.
type Window struct {
	mu     sync.Mutex
	clock  Clock
	max    int
	size   time.Duration
	stamps []time.Time
}

// NewWindow creates a sliding window admitting at most max executions per size.
// Non-positive values fall back to the defaults; a nil clock means SystemClock.
func NewWindow(max int, size time.Duration, clock Clock) *Window {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if size <= 0 {
		size = DefaultWindow
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Window{
		clock:  clock,
		max:    max,
		size:   size,
		stamps: make([]time.Time, 0, max),
	}
}

// CanExecute implements Limiter.
func (w *Window) CanExecute(_ context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.clock.Now())
	return len(w.stamps) < w.max
}

// RecordExecution implements Limiter.
func (w *Window) RecordExecution(_ context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamps = append(w.stamps, w.clock.Now())
}

// TimeUntilNextSlot implements Limiter.
func (w *Window) TimeUntilNextSlot(_ context.Context) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.stamps) < w.max {
		return 0
	}

	// The slot frees when the entry max positions from the newest leaves the window.
	wait := w.stamps[len(w.stamps)-w.max].Add(w.size).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Count returns the number of executions currently inside the window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.clock.Now())
	return len(w.stamps)
}

// Max returns the configured window capacity.
func (w *Window) Max() int { return w.max }

// Size returns the configured window duration.
func (w *Window) Size() time.Duration { return w.size }

// prune drops timestamps at or before now-size. Caller holds mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
