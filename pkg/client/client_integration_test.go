//go:build integration

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/azdo-client/internal/testutil"
	"github.com/Sternrassler/azdo-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_SharedWindowAcrossDispatchers(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAzDO()
	defer mock.Close()

	cfg := testConfig(mock.OrgURL())
	cfg.MaxRequestsPerWindow = 3
	cfg.WindowDuration = 500 * time.Millisecond

	// Two processes drawing on one organization budget.
	var dispatchers []*Dispatcher
	for i := 0; i < 2; i++ {
		window := ratelimit.NewSharedWindow(redisClient, "contoso", cfg.MaxRequestsPerWindow, cfg.WindowDuration, zerolog.Nop())
		d, err := New(cfg, &fakeAuth{token: "abc"}, WithLimiter(window), WithLogger(zerolog.Nop()))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer d.Close()
		dispatchers = append(dispatchers, d)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), Endpoint{Path: "_apis/projects"}); err != nil {
				t.Errorf("Dispatch() error = %v", err)
			}
		}(dispatchers[i%2])
	}
	wg.Wait()

	reqs := mock.Requests()
	if len(reqs) != 6 {
		t.Fatalf("requests = %d, want 6", len(reqs))
	}
	if gap := reqs[3].At.Sub(reqs[0].At); gap < cfg.WindowDuration-50*time.Millisecond {
		t.Errorf("fourth request came %v after the first, want the shared window to hold it back", gap)
	}
}

func TestIntegration_SharedWindowPreSeeded(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	mock := testutil.NewMockAzDO()
	defer mock.Close()

	cfg := testConfig(mock.OrgURL())
	cfg.MaxRequestsPerWindow = 2
	cfg.WindowDuration = 400 * time.Millisecond

	// Another process already spent the whole budget.
	window := ratelimit.NewSharedWindow(redisClient, "contoso", cfg.MaxRequestsPerWindow, cfg.WindowDuration, zerolog.Nop())
	window.RecordExecution(ctx)
	window.RecordExecution(ctx)

	d, err := New(cfg, &fakeAuth{token: "abc"}, WithLimiter(window), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer d.Close()

	start := time.Now()
	if _, err := d.Dispatch(ctx, Endpoint{Path: "_apis/projects"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("call ran after %v, want it to wait for the seeded window to expire", elapsed)
	}

	n, err := redisClient.ZCard(ctx, window.Key()).Result()
	if err != nil {
		t.Fatalf("ZCard() error = %v", err)
	}
	if n < 1 {
		t.Errorf("window entries = %d, want the dispatched call recorded", n)
	}
}
