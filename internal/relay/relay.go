// Package relay implements the edge-side aggregation relay: assembling
// samples from field snapshots, smoothing them through a bounded averaging
// window, and shipping each flush to the ingestion service.
package relay

import (
	"context"
	"time"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
)

// Relay runs one trigger cycle to completion: assemble, submit to the
// window, and on flush forward the aggregate. The field listener invokes
// Cycle serially, so the window sees exactly one writer; the mutex in
// Window covers any embedding that relaxes that.
type Relay struct {
	assembler *Assembler
	window    *Window
	forwarder ports.Forwarder
	obs       ports.Observability
}

func New(variant domain.Variant, windowCapacity int, fwd ports.Forwarder, obs ports.Observability) *Relay {
	return &Relay{
		assembler: NewAssembler(variant),
		window:    NewWindow(windowCapacity),
		forwarder: fwd,
		obs:       obs,
	}
}

// Cycle is the ports.CycleFunc for the field listener. It returns the
// assigned record id on a successful flush-and-forward, and 0 on a
// buffered (non-flush) cycle, a validation failure, or a forward failure.
// A forward failure drops the aggregate permanently: the window was
// already cleared on flush and nothing is requeued.
func (r *Relay) Cycle(ctx context.Context, snap *domain.FieldSnapshot) int64 {
	r.obs.IncCounter("iiot_cycles_total", 1)

	sample, err := r.assembler.Assemble(snap)
	if err != nil {
		r.obs.IncCounter("iiot_validation_failures_total", 1)
		r.obs.LogError("sample_rejected", err, ports.Field{Key: "machine_id", Value: snap.MachineID})
		return 0
	}
	r.obs.IncCounter("iiot_samples_assembled_total", 1)

	agg := r.window.Submit(sample)
	r.obs.SetGauge("iiot_window_fill", float64(r.window.Len()))
	if agg == nil {
		return 0
	}
	r.obs.IncCounter("iiot_flushes_total", 1)

	start := time.Now()
	res, err := r.forwarder.Forward(ctx, agg)
	r.obs.ObserveLatency("iiot_forward_latency_seconds", time.Since(start).Seconds())
	if err != nil {
		r.obs.IncCounter("iiot_forward_failures_total", 1)
		r.obs.IncCounter("iiot_aggregates_dropped_total", 1)
		r.obs.LogError("forward_failed", err, ports.Field{Key: "machine_id", Value: agg.MachineID})
		return 0
	}

	r.obs.LogInfo("aggregate_stored",
		ports.Field{Key: "record_id", Value: res.RecordID},
		ports.Field{Key: "machine_id", Value: agg.MachineID})
	return res.RecordID
}

// WindowLen exposes the current buffer depth for gauges and tests.
func (r *Relay) WindowLen() int { return r.window.Len() }
