// Package forward ships aggregated samples to the ingestion service over
// HTTP. One synchronous POST per flush with a bounded timeout; a timeout
// or non-success status is terminal for that aggregate.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
)

const DefaultTimeout = 10 * time.Second

type HTTPForwarder struct {
	url     string
	variant domain.Variant
	client  *http.Client
}

func NewHTTPForwarder(url string, variant domain.Variant, timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPForwarder{
		url:     url,
		variant: variant,
		client:  &http.Client{Timeout: timeout},
	}
}

type forwardResponse struct {
	Status   string       `json:"status"`
	RecordID int64        `json:"record_id"`
	Stats    domain.Stats `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (f *HTTPForwarder) Forward(ctx context.Context, agg *domain.AggregatedSample) (*ports.ForwardResult, error) {
	payload := map[string]any{
		"machine_id":        agg.MachineID,
		"timestep":          agg.Timestep,
		"temperatures":      f.variant.EncodeTemperatures(agg.Temperatures),
		"power_consumption": agg.PowerConsumption,
	}
	if f.variant.HasVibration() {
		payload["vibration"] = agg.Vibration
	} else {
		payload["simulation_time"] = agg.SimulationTime
		payload["num_nodes"] = agg.NodeCount
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.ForwardError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ForwardError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.ForwardError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var er errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&er); decodeErr == nil && er.Error != "" {
			return nil, &domain.ForwardError{Status: resp.StatusCode, Err: fmt.Errorf("%s", er.Error)}
		}
		return nil, &domain.ForwardError{Status: resp.StatusCode}
	}

	var fr forwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, &domain.ForwardError{Err: fmt.Errorf("decode response: %w", err)}
	}

	return &ports.ForwardResult{RecordID: fr.RecordID, Stats: fr.Stats}, nil
}

var _ ports.Forwarder = (*HTTPForwarder)(nil)
