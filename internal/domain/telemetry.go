package domain

import "time"

// Sample is one raw reading assembled from the field variable set.
type Sample struct {
	MachineID        string    `json:"machine_id"`
	Timestep         string    `json:"timestep"`
	SimulationTime   string    `json:"simulation_time"`
	NodeCount        int       `json:"num_nodes"`
	Temperatures     []float64 `json:"temperatures"`
	PowerConsumption float64   `json:"power_consumption"`
	Vibration        float64   `json:"vibration"`
}

// AggregatedSample is the element-wise mean of a full window of samples.
// Numeric payload is averaged; machine_id, timestep, simulation_time and
// num_nodes carry the values of the most recent sample in the window.
type AggregatedSample struct {
	MachineID        string    `json:"machine_id"`
	Timestep         string    `json:"timestep"`
	SimulationTime   string    `json:"simulation_time"`
	NodeCount        int       `json:"num_nodes"`
	Temperatures     []float64 `json:"temperatures"`
	PowerConsumption float64   `json:"power_consumption"`
	Vibration        float64   `json:"vibration"`
	WindowSize       int       `json:"-"`
}

// Stats holds population statistics over a temperature vector.
// Std divides the sum of squared deviations by N, not N-1.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// TelemetryRecord is the persisted, immutable form of an aggregated sample.
// The record store assigns ID; ReceivedAt is the ingestion server's clock,
// not the original timestep.
type TelemetryRecord struct {
	ID               int64     `json:"id"`
	MachineID        string    `json:"machine_id"`
	Timestep         string    `json:"timestep"`
	SimulationTime   string    `json:"simulation_time,omitempty"`
	NodeCount        int       `json:"num_nodes,omitempty"`
	Temperatures     []float64 `json:"temperatures"`
	PowerConsumption float64   `json:"power_consumption"`
	Vibration        float64   `json:"vibration,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
	Stats            Stats     `json:"stats"`
}

// FieldSnapshot is the raw variable set read from the field protocol in a
// single request. Temperatures stay in their wire encoding until the
// assembler decodes them against the deployment variant.
type FieldSnapshot struct {
	MachineID        string
	Timestep         string
	SimulationTime   string
	NodeCount        int
	TemperaturesRaw  string
	PowerConsumption float64
	Vibration        float64
}
