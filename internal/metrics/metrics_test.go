package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := New(false)
	if testutil.ToFloat64(m.ConnectionsAccepted) != 0 {
		t.Fatalf("expected zero initial ConnectionsAccepted")
	}

	m.ConnectionsAccepted.Add(2)
	m.SetQueueDepth(5)
	m.SetRunning(true)
	m.ObserveResponse(200)
	m.ObserveResponse(200)
	m.ObserveResponse(503)

	if got := testutil.ToFloat64(m.ConnectionsAccepted); got != 2 {
		t.Fatalf("expected ConnectionsAccepted=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 5 {
		t.Fatalf("expected QueueDepth=5, got %v", got)
	}
	if got := testutil.ToFloat64(m.ServerRunning); got != 1 {
		t.Fatalf("expected ServerRunning=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("200")); got != 2 {
		t.Fatalf("expected two 200 responses, got %v", got)
	}

	m.SetRunning(false)
	if got := testutil.ToFloat64(m.ServerRunning); got != 0 {
		t.Fatalf("expected ServerRunning=0, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResponse(500)
	m.SetRunning(true)
	m.SetQueueDepth(1)
}

func TestRegistryGathers(t *testing.T) {
	m := New(true)
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected metric families")
	}
}
