package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// memStore is an in-memory ports.RecordStore mirroring the Postgres
// adapter's ordering rules.
type memStore struct {
	records []domain.TelemetryRecord
	nextID  int64
	fail    error
}

func (m *memStore) Insert(_ context.Context, agg *domain.AggregatedSample, st domain.Stats, receivedAt time.Time) (int64, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	m.nextID++
	m.records = append(m.records, domain.TelemetryRecord{
		ID:               m.nextID,
		MachineID:        agg.MachineID,
		Timestep:         agg.Timestep,
		SimulationTime:   agg.SimulationTime,
		NodeCount:        agg.NodeCount,
		Temperatures:     agg.Temperatures,
		PowerConsumption: agg.PowerConsumption,
		Vibration:        agg.Vibration,
		ReceivedAt:       receivedAt,
		Stats:            st,
	})
	return m.nextID, nil
}

func (m *memStore) List(_ context.Context, machineID string) ([]domain.TelemetryRecord, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([]domain.TelemetryRecord, 0)
	for _, r := range m.records {
		if machineID == "" || r.MachineID == machineID {
			out = append(out, r)
		}
	}
	if machineID == "" {
		sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*domain.TelemetryRecord, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, nil
}

func (m *memStore) Machines(_ context.Context) ([]string, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range m.records {
		if !seen[r.MachineID] {
			seen[r.MachineID] = true
			out = append(out, r.MachineID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Count(_ context.Context) (int64, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	return int64(len(m.records)), nil
}

func newTestServer(t *testing.T, store *memStore) *httptest.Server {
	t.Helper()
	variant := domain.NodesVariant()
	variant.ExpectedNodes = 3
	h := NewHandler(NewValidator(variant), store, nil)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func postTelemetry(t *testing.T, srv *httptest.Server, machineID, timestep string) map[string]any {
	t.Helper()
	body := fmt.Sprintf(`{
		"machine_id": %q,
		"timestep": %q,
		"simulation_time": "2.0",
		"num_nodes": 3,
		"temperatures": [290.0, 292.0, 294.0],
		"power_consumption": 40.0
	}`, machineID, timestep)

	resp, err := http.Post(srv.URL+"/telemetry", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestReceiveStoreAndFetch(t *testing.T) {
	store := &memStore{}
	srv := newTestServer(t, store)

	out := postTelemetry(t, srv, "press_07", "4")
	require.Equal(t, "success", out["status"])
	require.Equal(t, float64(1), out["record_id"])
	require.Equal(t, "press_07", out["machine_id"])
	require.Equal(t, float64(3), out["num_nodes"])

	st, ok := out["stats"].(map[string]any)
	require.True(t, ok, "response stats: %v", out["stats"])
	require.Equal(t, 290.0, st["min"])
	require.Equal(t, 294.0, st["max"])
	require.Equal(t, 292.0, st["mean"])

	resp, err := http.Get(srv.URL + "/telemetry/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec domain.TelemetryRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.Equal(t, int64(1), rec.ID)
	require.Equal(t, "press_07", rec.MachineID)
	require.Len(t, rec.Temperatures, 3)
	require.InDelta(t, 1.632993, rec.Stats.Std, 1e-5)
}

func TestReceiveEmptyBody(t *testing.T) {
	srv := newTestServer(t, &memStore{})

	resp, err := http.Post(srv.URL+"/telemetry", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "No JSON data provided", out["error"])
}

func TestReceiveValidationError(t *testing.T) {
	srv := newTestServer(t, &memStore{})

	resp, err := http.Post(srv.URL+"/telemetry", "application/json",
		bytes.NewBufferString(`{"timestep": "1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "missing 'machine_id' field", out["error"])
}

func TestReceiveStorageFailure(t *testing.T) {
	store := &memStore{fail: &domain.PersistenceError{Op: "insert", Err: fmt.Errorf("connection reset")}}
	srv := newTestServer(t, store)

	body := `{
		"machine_id": "m",
		"timestep": "1",
		"num_nodes": 3,
		"temperatures": [1.0, 2.0, 3.0],
		"power_consumption": 5.0
	}`
	resp, err := http.Post(srv.URL+"/telemetry", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out["error"], "Internal server error")
}

func TestListAllAndFiltered(t *testing.T) {
	store := &memStore{}
	srv := newTestServer(t, store)

	postTelemetry(t, srv, "press_01", "1")
	postTelemetry(t, srv, "press_02", "1")
	postTelemetry(t, srv, "press_01", "2")

	resp, err := http.Get(srv.URL + "/telemetry")
	require.NoError(t, err)
	defer resp.Body.Close()

	var all struct {
		TotalRecords int                      `json:"total_records"`
		MachineID    *string                  `json:"machine_id"`
		Data         []domain.TelemetryRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Equal(t, 3, all.TotalRecords)
	require.Nil(t, all.MachineID)

	resp2, err := http.Get(srv.URL + "/telemetry?machine_id=press_01")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var filtered struct {
		TotalRecords int                      `json:"total_records"`
		MachineID    *string                  `json:"machine_id"`
		Data         []domain.TelemetryRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&filtered))
	require.Equal(t, 2, filtered.TotalRecords)
	require.NotNil(t, filtered.MachineID)
	require.Equal(t, "press_01", *filtered.MachineID)
	for _, r := range filtered.Data {
		require.Equal(t, "press_01", r.MachineID)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := newTestServer(t, &memStore{})

	resp, err := http.Get(srv.URL + "/telemetry/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "Record not found", out["error"])
}

func TestGetNonNumericIDRoutes404(t *testing.T) {
	srv := newTestServer(t, &memStore{})

	resp, err := http.Get(srv.URL + "/telemetry/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMachines(t *testing.T) {
	store := &memStore{}
	srv := newTestServer(t, store)

	postTelemetry(t, srv, "press_02", "1")
	postTelemetry(t, srv, "press_01", "1")
	postTelemetry(t, srv, "press_02", "2")

	resp, err := http.Get(srv.URL + "/machines")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Machines []string `json:"machines"`
		Total    int      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out.Total)
	require.Equal(t, []string{"press_01", "press_02"}, out.Machines)
}

func TestHealth(t *testing.T) {
	store := &memStore{}
	srv := newTestServer(t, store)
	postTelemetry(t, srv, "m", "1")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "healthy", out["status"])
	require.Equal(t, "connected", out["database"])
	require.Equal(t, float64(1), out["total_records"])
}

func TestHealthStorageDown(t *testing.T) {
	store := &memStore{fail: fmt.Errorf("dial tcp: connection refused")}
	srv := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "unhealthy", out["status"])
	require.Equal(t, "disconnected", out["database"])
	require.Contains(t, out["error"], "connection refused")
}
