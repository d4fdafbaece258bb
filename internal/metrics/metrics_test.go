package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsIgnoreWrites(t *testing.T) {
	m := New(Config{Enabled: false, EnableLatency: true})
	m.Inc(MetricIssue)
	m.Observe(MetricAuthLatency, time.Millisecond)

	if m.Value(MetricIssue) != 0 {
		t.Fatalf("expected disabled counter to stay zero")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if m.LatencyEnabled() {
		t.Fatalf("latency must follow Enabled")
	}
}

func TestCountersAreConcurrent(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers, perWorker = 8, 1000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
	if got := m.Snapshot().Counters[MetricRefreshSuccess]; got != workers*perWorker {
		t.Fatalf("snapshot mismatch: %d", got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	m.Observe(MetricAuthLatency, 10*time.Microsecond)
	m.Observe(MetricAuthLatency, 700*time.Microsecond)
	m.Observe(MetricAuthLatency, time.Second)
	m.Observe(MetricIssue, time.Second)

	buckets := m.Snapshot().Histograms[MetricAuthLatency]
	want := []uint64{1, 0, 0, 0, 1, 0, 0, 1}
	for i := range want {
		if buckets[i] != want[i] {
			t.Fatalf("bucket %d: want %d, got %d (%v)", i, want[i], buckets[i], buckets)
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricIssue]; ok {
		t.Fatalf("only the auth latency histogram is exported")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricIssue)
	m.Observe(MetricAuthLatency, time.Millisecond)
	if m.Enabled() || m.Value(MetricIssue) != 0 {
		t.Fatalf("nil metrics must be inert")
	}
}
