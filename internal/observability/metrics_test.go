package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshotCopiesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/api/tickets", "GET", 200, 30*time.Millisecond)
	m.RecordTransition("open", "in-progress")
	m.RecordDispatch("delivered")
	m.RecordSweep("snooze", 0)
	m.RecordSweep("snooze", 3)
	m.RecordDispatchAlert()

	snap := m.Snapshot()
	if snap.Requests["/api/tickets|GET|200"] != 2 {
		t.Fatalf("requests = %v", snap.Requests)
	}
	if snap.AvgLatencyMS != 20 {
		t.Fatalf("avg latency = %v", snap.AvgLatencyMS)
	}
	if snap.Transitions["open->in-progress"] != 1 || snap.Dispatches["delivered"] != 1 || snap.Alerts != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Sweeps["snooze"] != 3 {
		t.Fatalf("sweeps = %v", snap.Sweeps)
	}

	snap.Requests["/api/tickets|GET|200"] = 99
	if m.Snapshot().Requests["/api/tickets|GET|200"] != 2 {
		t.Fatal("snapshot shares state with metrics")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordTransition("a", "b")
	if len(m.Snapshot().Requests) != 0 {
		t.Fatal("expected empty snapshot")
	}
}
