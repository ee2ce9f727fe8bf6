package observability

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
)

// PromObs backs the Observability port with Prometheus collectors and
// stdlib logging for the relay process.
type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(reg prometheus.Registerer) *PromObs {
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_cycles_total",
		Help: "Trigger cycles handled by the relay.",
	})
	assembled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_samples_assembled_total",
		Help: "Field snapshots that passed assembly validation.",
	})
	validationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_validation_failures_total",
		Help: "Field snapshots rejected during assembly.",
	})
	flushes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_flushes_total",
		Help: "Window flushes producing an aggregated sample.",
	})
	forwardFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_forward_failures_total",
		Help: "Forwards that timed out or returned a non-success status.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iiot_aggregates_dropped_total",
		Help: "Aggregated samples lost because their forward failed.",
	})
	windowFill := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iiot_window_fill",
		Help: "Samples currently buffered in the aggregation window.",
	})
	forwardLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "iiot_forward_latency_seconds",
		Help:    "Latency of one forward to the ingestion service.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	reg.MustRegister(cycles, assembled, validationFailures, flushes, forwardFailures, dropped, windowFill, forwardLatency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"iiot_cycles_total":              cycles,
			"iiot_samples_assembled_total":   assembled,
			"iiot_validation_failures_total": validationFailures,
			"iiot_flushes_total":             flushes,
			"iiot_forward_failures_total":    forwardFailures,
			"iiot_aggregates_dropped_total":  dropped,
		},
		gauges: map[string]prometheus.Gauge{
			"iiot_window_fill": windowFill,
		},
		histos: map[string]prometheus.Observer{
			"iiot_forward_latency_seconds": forwardLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func formatFields(fields []ports.Field) string {
	out := ""
	for _, f := range fields {
		out += fmt.Sprintf(" %s=%v", f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
