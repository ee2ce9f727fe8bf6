package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg)

	obs.IncCounter("iiot_cycles_total", 1)
	obs.IncCounter("iiot_cycles_total", 1)
	obs.IncCounter("iiot_flushes_total", 1)
	obs.SetGauge("iiot_window_fill", 3)

	if got := testutil.ToFloat64(obs.counters["iiot_cycles_total"]); got != 2 {
		t.Fatalf("cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(obs.counters["iiot_flushes_total"]); got != 1 {
		t.Fatalf("flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.gauges["iiot_window_fill"]); got != 3 {
		t.Fatalf("window fill = %v, want 3", got)
	}
}

func TestUnknownMetricIsIgnored(t *testing.T) {
	obs := NewPromObs(prometheus.NewRegistry())

	// Unknown names are dropped rather than panicking mid-cycle.
	obs.IncCounter("iiot_nonexistent_total", 1)
	obs.SetGauge("iiot_nonexistent", 1)
	obs.ObserveLatency("iiot_nonexistent_seconds", 0.1)
}

func TestObserveLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg)

	obs.ObserveLatency("iiot_forward_latency_seconds", 0.02)
	obs.ObserveLatency("iiot_forward_latency_seconds", 0.04)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "iiot_forward_latency_seconds" {
			h := f.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Fatalf("sample count = %d, want 2", h.GetSampleCount())
			}
			return
		}
	}
	t.Fatal("histogram not registered")
}

func TestRegistersAllRelayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromObs(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 8 {
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		t.Fatalf("metric families = %d (%v), want 8", len(families), names)
	}
}
