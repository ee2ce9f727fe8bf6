package ports

import (
	"context"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// CycleFunc handles one trigger cycle. It receives the atomic snapshot of
// the field variable set and returns the record id to write back to the
// result field. A return of 0 signals that no record was stored this cycle
// (partial window, validation failure, or forward failure).
type CycleFunc func(ctx context.Context, snap *domain.FieldSnapshot) int64

// FieldListener watches the field protocol's trigger variable and drives
// one cycle per false->true edge. Cycles are strictly serialized: the next
// notification is not handled until the previous cycle has completed and
// the trigger has been reset.
type FieldListener interface {
	Start(handle CycleFunc) error
	Stop() error
}
