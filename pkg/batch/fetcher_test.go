package batch

import (
	"context"
	"errors"
	"testing"
)

func seq(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		ids   []int
		size  int
		sizes []int
	}{
		{"empty", nil, 200, nil},
		{"single chunk", seq(3), 200, []int{3}},
		{"exact multiple", seq(400), 200, []int{200, 200}},
		{"remainder", seq(500), 200, []int{200, 200, 100}},
		{"size one", seq(3), 1, []int{1, 1, 1}},
		{"default size", seq(201), 0, []int{200, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Plan(tt.ids, tt.size)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tt.sizes))
			}
			next := 1
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d size = %d, want %d", i, len(c), tt.sizes[i])
				}
				for _, id := range c {
					if id != next {
						t.Fatalf("chunk %d: id %d out of order, want %d", i, id, next)
					}
					next++
				}
			}
		})
	}
}

func TestPlan_ChunksDoNotAlias(t *testing.T) {
	chunks := Plan(seq(5), 2)
	chunks[0] = append(chunks[0], 99)
	if chunks[1][0] != 3 {
		t.Errorf("appending to a chunk overwrote the next one: %v", chunks[1])
	}
}

func TestFetchInChunks_PreservesOrder(t *testing.T) {
	var calls [][]int
	fetch := func(_ context.Context, ids []int) ([]string, error) {
		calls = append(calls, ids)
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = string(rune('a' + id%26))
		}
		return out, nil
	}

	got, err := FetchInChunks(context.Background(), seq(500), 200, fetch)
	if err != nil {
		t.Fatalf("FetchInChunks() error = %v", err)
	}
	if len(got) != 500 {
		t.Fatalf("results = %d, want 500", len(got))
	}
	if len(calls) != 3 {
		t.Fatalf("fetch calls = %d, want 3", len(calls))
	}
	for i, want := range []int{200, 200, 100} {
		if len(calls[i]) != want {
			t.Errorf("call %d size = %d, want %d", i, len(calls[i]), want)
		}
	}
	if calls[1][0] != 201 || calls[2][0] != 401 {
		t.Errorf("chunks started at %d and %d, want 201 and 401", calls[1][0], calls[2][0])
	}
	if got[0] != "b" || got[499] != string(rune('a'+500%26)) {
		t.Errorf("results out of order: first %q last %q", got[0], got[499])
	}
}

func TestFetchInChunks_Empty(t *testing.T) {
	called := false
	got, err := FetchInChunks(context.Background(), nil, 200, func(context.Context, []int) ([]int, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("FetchInChunks() error = %v", err)
	}
	if called {
		t.Error("fetch should not be called for an empty id list")
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestFetchInChunks_FailsFast(t *testing.T) {
	boom := errors.New("permanent request failure")
	calls := 0
	fetch := func(_ context.Context, ids []int) ([]int, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return ids, nil
	}

	got, err := FetchInChunks(context.Background(), seq(10), 3, fetch)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got != nil {
		t.Errorf("partial results returned: %v", got)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestFetchInChunks_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fetch := func(_ context.Context, ids []int) ([]int, error) {
		calls++
		cancel()
		return ids, nil
	}

	_, err := FetchInChunks(ctx, seq(6), 2, fetch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}
