package ingest

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the ingestion API routes plus the Prometheus endpoint.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/telemetry", h.HandleReceive).Methods(http.MethodPost)
	router.HandleFunc("/telemetry", h.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/telemetry/{id:[0-9]+}", h.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/machines", h.HandleMachines).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	router.Use(loggingMiddleware)
	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
