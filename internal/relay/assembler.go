package relay

import (
	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// Assembler turns a raw field snapshot into a validated Sample. The
// temperature vector is decoded from its wire encoding and checked against
// the deployment's fixed node count; a mismatch is a validation failure,
// never a silent truncation.
type Assembler struct {
	variant domain.Variant
}

func NewAssembler(variant domain.Variant) *Assembler {
	return &Assembler{variant: variant}
}

func (a *Assembler) Assemble(snap *domain.FieldSnapshot) (*domain.Sample, error) {
	temps, err := a.variant.DecodeTemperatures(snap.TemperaturesRaw)
	if err != nil {
		return nil, err
	}
	if len(temps) != a.variant.ExpectedNodes {
		return nil, &domain.LengthMismatchError{
			Expected: a.variant.ExpectedNodes,
			Actual:   len(temps),
		}
	}

	nodeCount := snap.NodeCount
	if !a.variant.HasNodeCount() {
		nodeCount = a.variant.ExpectedNodes
	}

	return &domain.Sample{
		MachineID:        snap.MachineID,
		Timestep:         snap.Timestep,
		SimulationTime:   snap.SimulationTime,
		NodeCount:        nodeCount,
		Temperatures:     temps,
		PowerConsumption: snap.PowerConsumption,
		Vibration:        snap.Vibration,
	}, nil
}
