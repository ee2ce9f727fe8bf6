// Package ingest implements the ingestion service: payload validation,
// statistics, persistence, and the HTTP query surface.
package ingest

import (
	"encoding/json"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// payload decodes with pointer fields so absence and wrong type are
// distinguishable at the boundary. Temperatures stays raw until the
// variant decides whether it must be an array or a CSV string.
type payload struct {
	MachineID        *string         `json:"machine_id"`
	Timestep         json.RawMessage `json:"timestep"`
	SimulationTime   string          `json:"simulation_time"`
	NumNodes         *int            `json:"num_nodes"`
	Temperatures     json.RawMessage `json:"temperatures"`
	PowerConsumption *float64        `json:"power_consumption"`
	Vibration        *float64        `json:"vibration"`
}

// Validator checks inbound aggregated samples against the deployment
// variant's shape rules. Out-of-range temperatures are accepted as-is;
// only shape, type, and vector length are enforced.
type Validator struct {
	variant domain.Variant
}

func NewValidator(variant domain.Variant) *Validator {
	return &Validator{variant: variant}
}

// Validate parses and checks a request body. Check order matches the wire
// contract: field presence (machine_id, timestep, temperatures,
// power_consumption, then num_nodes or vibration), temperatures type,
// then vector length.
func (v *Validator) Validate(body []byte) (*domain.AggregatedSample, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &domain.WrongTypeError{Field: "body", Want: "a JSON object"}
	}

	if p.MachineID == nil {
		return nil, &domain.MissingFieldError{Field: "machine_id"}
	}
	if absent(p.Timestep) {
		return nil, &domain.MissingFieldError{Field: "timestep"}
	}
	if absent(p.Temperatures) {
		return nil, &domain.MissingFieldError{Field: "temperatures"}
	}
	if p.PowerConsumption == nil {
		return nil, &domain.MissingFieldError{Field: "power_consumption"}
	}
	if v.variant.HasVibration() {
		if p.Vibration == nil {
			return nil, &domain.MissingFieldError{Field: "vibration"}
		}
	} else if p.NumNodes == nil {
		return nil, &domain.MissingFieldError{Field: "num_nodes"}
	}

	timestep, err := decodeTimestep(p.Timestep)
	if err != nil {
		return nil, err
	}

	temps, err := v.decodeTemperatures(p.Temperatures)
	if err != nil {
		return nil, err
	}
	if len(temps) != v.variant.ExpectedNodes {
		return nil, &domain.LengthMismatchError{
			Expected: v.variant.ExpectedNodes,
			Actual:   len(temps),
		}
	}

	agg := &domain.AggregatedSample{
		MachineID:        *p.MachineID,
		Timestep:         timestep,
		SimulationTime:   p.SimulationTime,
		Temperatures:     temps,
		PowerConsumption: *p.PowerConsumption,
	}
	if v.variant.HasVibration() {
		agg.Vibration = *p.Vibration
		agg.NodeCount = v.variant.ExpectedNodes
	} else {
		agg.NodeCount = *p.NumNodes
	}
	return agg, nil
}

func (v *Validator) decodeTemperatures(raw json.RawMessage) ([]float64, error) {
	if v.variant.Encoding == domain.EncodingCSV {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &domain.WrongTypeError{Field: "temperatures", Want: "a comma-separated string"}
		}
		return v.variant.DecodeTemperatures(s)
	}

	var temps []float64
	if err := json.Unmarshal(raw, &temps); err != nil {
		return nil, &domain.WrongTypeError{Field: "temperatures", Want: "an array"}
	}
	return temps, nil
}

// absent reports whether a raw field was omitted or sent as an explicit
// null; both count as missing.
func absent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// decodeTimestep accepts a string or, as the legacy clients sometimes
// send, a bare number. It is stored verbatim and never reparsed.
func decodeTimestep(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", &domain.WrongTypeError{Field: "timestep", Want: "a string"}
}
