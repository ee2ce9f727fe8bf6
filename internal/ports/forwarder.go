package ports

import (
	"context"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// ForwardResult is the ingestion service's acknowledgment of one flush.
type ForwardResult struct {
	RecordID int64
	Stats    domain.Stats
}

// Forwarder ships one aggregated sample to the ingestion boundary. Exactly
// one forward happens per window flush; a failed forward is terminal for
// that aggregate.
type Forwarder interface {
	Forward(ctx context.Context, agg *domain.AggregatedSample) (*ForwardResult, error)
}
