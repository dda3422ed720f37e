package goGuard

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricValidateSuccess)

	if got := m.Value(MetricValidateSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricValidateSuccess)
	m.Inc(MetricValidateSuccess)
	m.Inc(MetricValidateSuccess)

	if got := m.Value(MetricValidateSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricValidateSuccess)
	m.Inc(MetricValidateRejected)
	m.Inc(MetricValidateRejected)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricValidateSuccess] != 1 {
		t.Fatalf("expected MetricValidateSuccess=1 got %d", snap.Counters[MetricValidateSuccess])
	}
	if snap.Counters[MetricValidateRejected] != 2 {
		t.Fatalf("expected MetricValidateRejected=2 got %d", snap.Counters[MetricValidateRejected])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func TestMetricsAddAndLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Add(MetricRecordsPruned, 5)
	m.Add(MetricRecordsPruned, 0)
	m.Observe(MetricValidateLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricRecordsPruned] != 5 {
		t.Fatalf("expected 5 pruned, got %d", snap.Counters[MetricRecordsPruned])
	}
	if _, ok := snap.Histograms[MetricValidateLatency]; ok {
		t.Fatal("expected no histogram when latency histograms are disabled")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricValidateSuccess)
	m.Observe(MetricValidateLatency, time.Second)
	if m.Value(MetricValidateSuccess) != 0 || m.Enabled() {
		t.Fatal("expected nil metrics to be a no-op")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot")
	}
}
