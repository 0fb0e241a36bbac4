package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestsTotal.WithLabelValues("GET", "200").Inc()
	m.RetriesTotal.WithLabelValues("server").Inc()
	m.QueueDepth.Set(3)

	count, err := testutil.GatherAndCount(reg, "azdo_requests_total", "azdo_retries_total", "azdo_queue_depth")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("GatherAndCount() = %d, want 3", count)
	}

	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("QueueDepth = %v, want 3", got)
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Two pipelines must not collide on registration.
	a := NewUnregistered()
	b := NewUnregistered()

	a.RequestsTotal.WithLabelValues("GET", "200").Inc()

	if got := testutil.ToFloat64(b.RequestsTotal.WithLabelValues("GET", "200")); got != 0 {
		t.Errorf("second pipeline counter = %v, want 0", got)
	}
}
