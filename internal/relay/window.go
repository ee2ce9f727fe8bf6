package relay

import (
	"sync"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// Window is the bounded buffer of unflushed samples. Length stays in
// [0, capacity) between flushes; appending the capacity-th sample flushes
// the whole window into one aggregated sample and empties it. The mutex
// makes Submit exclusive with itself so concurrent submitters can never
// interleave the read-modify-write and overfill or drop elements.
type Window struct {
	mu      sync.Mutex
	samples []*domain.Sample
	cap     int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		samples: make([]*domain.Sample, 0, capacity),
		cap:     capacity,
	}
}

// Submit appends the sample. When the window reaches capacity it returns
// the aggregate and clears itself; otherwise it returns nil and retains
// the partial window. The clear is unconditional: whatever happens to the
// aggregate downstream, the next flush starts from an empty window.
func (w *Window) Submit(s *domain.Sample) *domain.AggregatedSample {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	if len(w.samples) < w.cap {
		return nil
	}

	agg := aggregate(w.samples)
	w.samples = w.samples[:0]
	return agg
}

// Len reports the current number of buffered samples.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Capacity reports the configured flush threshold.
func (w *Window) Capacity() int { return w.cap }

// aggregate reduces a full window: temperatures[i] becomes the arithmetic
// mean of temperatures[i] across the window in submission order, power and
// vibration become scalar means, and metadata is copied from the last
// sample (most-recent-wins).
func aggregate(samples []*domain.Sample) *domain.AggregatedSample {
	n := float64(len(samples))
	last := samples[len(samples)-1]

	temps := make([]float64, len(last.Temperatures))
	var power, vibration float64
	for _, s := range samples {
		for i, t := range s.Temperatures {
			temps[i] += t
		}
		power += s.PowerConsumption
		vibration += s.Vibration
	}
	for i := range temps {
		temps[i] /= n
	}

	return &domain.AggregatedSample{
		MachineID:        last.MachineID,
		Timestep:         last.Timestep,
		SimulationTime:   last.SimulationTime,
		NodeCount:        last.NodeCount,
		Temperatures:     temps,
		PowerConsumption: power / n,
		Vibration:        vibration / n,
		WindowSize:       len(samples),
	}
}
