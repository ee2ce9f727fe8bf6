package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/cache"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/stats"
)

// Handler serves the ingestion API. Each request opens its own storage
// work and shares nothing across requests; the optional cache only
// shortcuts reads.
type Handler struct {
	validator *Validator
	store     ports.RecordStore
	cache     *cache.RedisCache
	now       func() time.Time
}

func NewHandler(validator *Validator, store ports.RecordStore, redis *cache.RedisCache) *Handler {
	return &Handler{
		validator: validator,
		store:     store,
		cache:     redis,
		now:       time.Now,
	}
}

// HandleReceive is POST /telemetry: validate, compute stats, persist, and
// acknowledge with the assigned record id.
func (h *Handler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("/telemetry", r.Method))
	defer timer.ObserveDuration()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		h.respondError(w, r, "/telemetry", http.StatusBadRequest, "No JSON data provided")
		return
	}

	agg, err := h.validator.Validate(body)
	if err != nil {
		validationRejects.Inc()
		h.respondError(w, r, "/telemetry", http.StatusBadRequest, err.Error())
		return
	}

	st := stats.Compute(agg.Temperatures)
	receivedAt := h.now()

	id, err := h.store.Insert(r.Context(), agg, st, receivedAt)
	if err != nil {
		h.respondError(w, r, "/telemetry", http.StatusInternalServerError,
			fmt.Sprintf("Internal server error: %v", err))
		return
	}
	recordsStored.Inc()

	if h.cache != nil {
		_ = h.cache.InvalidateMachines(r.Context())
	}

	resp := map[string]any{
		"status":            "success",
		"message":           "Telemetry data received and stored",
		"record_id":         id,
		"machine_id":        agg.MachineID,
		"timestep":          agg.Timestep,
		"power_consumption": agg.PowerConsumption,
		"stats":             st,
	}
	if h.validator.variant.HasVibration() {
		resp["vibration"] = agg.Vibration
	} else {
		resp["simulation_time"] = agg.SimulationTime
		resp["num_nodes"] = agg.NodeCount
	}

	h.respondJSON(w, r, "/telemetry", http.StatusCreated, resp)
}

// HandleList is GET /telemetry: all records, optionally filtered by
// machine_id. Unfiltered is newest-first; filtered is oldest-first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("/telemetry", r.Method))
	defer timer.ObserveDuration()

	machineID := r.URL.Query().Get("machine_id")
	records, err := h.store.List(r.Context(), machineID)
	if err != nil {
		h.respondError(w, r, "/telemetry", http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve telemetry: %v", err))
		return
	}

	resp := map[string]any{
		"total_records": len(records),
		"data":          records,
	}
	if machineID != "" {
		resp["machine_id"] = machineID
	} else {
		resp["machine_id"] = nil
	}
	h.respondJSON(w, r, "/telemetry", http.StatusOK, resp)
}

// HandleGet is GET /telemetry/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("/telemetry/{id}", r.Method))
	defer timer.ObserveDuration()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, r, "/telemetry/{id}", http.StatusNotFound, "Record not found")
		return
	}

	if h.cache != nil {
		if rec, ok := h.cache.GetRecord(r.Context(), id); ok {
			h.respondJSON(w, r, "/telemetry/{id}", http.StatusOK, rec)
			return
		}
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "/telemetry/{id}", http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve record: %v", err))
		return
	}
	if rec == nil {
		h.respondError(w, r, "/telemetry/{id}", http.StatusNotFound, "Record not found")
		return
	}

	if h.cache != nil {
		_ = h.cache.CacheRecord(r.Context(), rec)
	}
	h.respondJSON(w, r, "/telemetry/{id}", http.StatusOK, rec)
}

// HandleMachines is GET /machines: distinct machine ids, ascending.
func (h *Handler) HandleMachines(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("/machines", r.Method))
	defer timer.ObserveDuration()

	if h.cache != nil {
		if machines, ok := h.cache.GetMachines(r.Context()); ok {
			h.respondJSON(w, r, "/machines", http.StatusOK, map[string]any{
				"machines": machines,
				"total":    len(machines),
			})
			return
		}
	}

	machines, err := h.store.Machines(r.Context())
	if err != nil {
		h.respondError(w, r, "/machines", http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve machines: %v", err))
		return
	}

	if h.cache != nil {
		_ = h.cache.CacheMachines(r.Context(), machines)
	}
	h.respondJSON(w, r, "/machines", http.StatusOK, map[string]any{
		"machines": machines,
		"total":    len(machines),
	})
}

// HandleHealth is GET /health: a live count against storage decides
// healthy versus unhealthy.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	total, err := h.store.Count(ctx)
	if err != nil {
		h.respondJSON(w, r, "/health", http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	h.respondJSON(w, r, "/health", http.StatusOK, map[string]any{
		"status":        "healthy",
		"database":      "connected",
		"total_records": total,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, endpoint string, status int, data any) {
	requestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, endpoint string, status int, msg string) {
	h.respondJSON(w, r, endpoint, status, map[string]string{"error": msg})
}
