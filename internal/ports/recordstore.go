package ports

import (
	"context"
	"time"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// RecordStore is the append-only telemetry log. Insert assigns and returns
// a monotonically increasing id; records are never mutated or deleted.
type RecordStore interface {
	Insert(ctx context.Context, agg *domain.AggregatedSample, st domain.Stats, receivedAt time.Time) (int64, error)

	// List returns all records, newest-first when machineID is empty and
	// oldest-first when filtering by machine.
	List(ctx context.Context, machineID string) ([]domain.TelemetryRecord, error)

	Get(ctx context.Context, id int64) (*domain.TelemetryRecord, error)

	// Machines returns distinct machine identifiers in ascending lexical order.
	Machines(ctx context.Context) ([]string, error)

	// Count is the health probe's liveness check against storage.
	Count(ctx context.Context) (int64, error)
}
