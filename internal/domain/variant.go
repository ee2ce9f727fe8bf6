package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Encoding selects how a temperature vector travels on the wire.
type Encoding string

const (
	// EncodingArray carries temperatures as a JSON array of floats.
	EncodingArray Encoding = "array"
	// EncodingCSV carries temperatures as one comma-separated string.
	EncodingCSV Encoding = "csv"
)

// Variant names the two deployed payload shapes. The node-vector variant
// carries simulation_time and num_nodes; the fixed-grid variant carries
// vibration and encodes temperatures as CSV.
const (
	VariantNodes = "nodes"
	VariantGrid  = "grid"
)

// Variant parameterizes the shared wire contract: expected vector length
// and encoding. Both the relay and the ingestion validator dispatch on one
// Variant value instead of duplicating the service per shape.
type Variant struct {
	Name          string
	ExpectedNodes int
	Encoding      Encoding
}

// NodesVariant is the default deployment: 1581 chamber node temperatures
// as a JSON array.
func NodesVariant() Variant {
	return Variant{Name: VariantNodes, ExpectedNodes: 1581, Encoding: EncodingArray}
}

// GridVariant is the 100x100 grid deployment: 10000 cell temperatures as a
// comma-separated string, with a vibration reading.
func GridVariant() Variant {
	return Variant{Name: VariantGrid, ExpectedNodes: 10000, Encoding: EncodingCSV}
}

// HasVibration reports whether the payload carries a vibration field.
func (v Variant) HasVibration() bool { return v.Name == VariantGrid }

// HasNodeCount reports whether the payload carries num_nodes and
// simulation_time.
func (v Variant) HasNodeCount() bool { return v.Name != VariantGrid }

// DecodeTemperatures parses the wire form of a temperature vector. The raw
// string is either a JSON-encoded array or comma-separated values
// depending on the variant encoding. Length is not checked here; the
// assembler and validator own that invariant.
func (v Variant) DecodeTemperatures(raw string) ([]float64, error) {
	switch v.Encoding {
	case EncodingCSV:
		parts := strings.Split(raw, ",")
		temps := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, &WrongTypeError{Field: "temperatures", Want: "numeric values"}
			}
			temps = append(temps, f)
		}
		return temps, nil
	case EncodingArray:
		var temps []float64
		if err := json.Unmarshal([]byte(raw), &temps); err != nil {
			return nil, &WrongTypeError{Field: "temperatures", Want: "an array"}
		}
		return temps, nil
	default:
		return nil, fmt.Errorf("unknown temperature encoding %q", v.Encoding)
	}
}

// EncodeTemperatures renders a vector in the variant's wire form, for use
// as a JSON payload value.
func (v Variant) EncodeTemperatures(temps []float64) any {
	if v.Encoding != EncodingCSV {
		return temps
	}
	parts := make([]string, len(temps))
	for i, t := range temps {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
