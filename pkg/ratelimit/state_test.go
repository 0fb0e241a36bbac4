package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseServiceState(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantNil       bool
		wantErr       bool
		wantDelay     time.Duration
		wantRemaining float64
		wantNearLimit bool
	}{
		{
			name:    "no throttling headers",
			headers: map[string]string{"Content-Type": "application/json"},
			wantNil: true,
		},
		{
			name: "delayed request",
			headers: map[string]string{
				HeaderResource:  "Core",
				HeaderDelay:     "1.5",
				HeaderLimit:     "200",
				HeaderRemaining: "10",
				HeaderReset:     "1760000000",
			},
			wantDelay:     1500 * time.Millisecond,
			wantRemaining: 10,
			wantNearLimit: true,
		},
		{
			name: "healthy remaining",
			headers: map[string]string{
				HeaderLimit:     "200",
				HeaderRemaining: "150",
			},
			wantRemaining: 150,
		},
		{
			name:    "invalid delay",
			headers: map[string]string{HeaderDelay: "soon"},
			wantErr: true,
		},
		{
			name:    "invalid reset",
			headers: map[string]string{HeaderResource: "Core", HeaderReset: "tomorrow"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			state, err := ParseServiceState(h)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServiceState() error = %v", err)
			}
			if tt.wantNil {
				if state != nil {
					t.Errorf("ParseServiceState() = %+v, want nil", state)
				}
				return
			}

			if state.Delay != tt.wantDelay {
				t.Errorf("Delay = %v, want %v", state.Delay, tt.wantDelay)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %v, want %v", state.Remaining, tt.wantRemaining)
			}
			if state.NearLimit() != tt.wantNearLimit {
				t.Errorf("NearLimit() = %v, want %v", state.NearLimit(), tt.wantNearLimit)
			}
			if state.IsDelayed() != (tt.wantDelay > 0) {
				t.Errorf("IsDelayed() = %v, want %v", state.IsDelayed(), tt.wantDelay > 0)
			}
		})
	}
}

func TestServiceState_TimeUntilReset(t *testing.T) {
	now := time.Unix(1760000000, 0)

	tests := []struct {
		name    string
		resetAt time.Time
		want    time.Duration
	}{
		{name: "unknown reset", want: 0},
		{name: "future reset", resetAt: now.Add(30 * time.Second), want: 30 * time.Second},
		{name: "past reset", resetAt: now.Add(-5 * time.Second), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ServiceState{ResetAt: tt.resetAt}
			if got := s.TimeUntilReset(now); got != tt.want {
				t.Errorf("TimeUntilReset() = %v, want %v", got, tt.want)
			}
		})
	}
}
