package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iiot_ingest_requests_total",
			Help: "Requests processed by the ingestion API.",
		},
		[]string{"endpoint", "method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iiot_ingest_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	recordsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iiot_ingest_records_stored_total",
			Help: "Telemetry records accepted and persisted.",
		},
	)

	validationRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iiot_ingest_validation_rejects_total",
			Help: "Payloads rejected by shape validation.",
		},
	)
)
