// Package app wires adapters into runnable relay and ingestion processes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/cache"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/observability"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/opcua"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/store"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/app/config"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/forward"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ingest"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/relay"
)

// RelayOption customizes the dependencies used by RelayRuntime.
type RelayOption func(*relayOverrides)

type relayOverrides struct {
	listener      ports.FieldListener
	forwarder     ports.Forwarder
	observability ports.Observability
}

// WithListener injects a custom field listener (simulators, other
// protocols).
func WithListener(l ports.FieldListener) RelayOption {
	return func(o *relayOverrides) { o.listener = l }
}

// WithForwarder injects a custom forwarder so flushes can be sent to any
// ingestion boundary.
func WithForwarder(f ports.Forwarder) RelayOption {
	return func(o *relayOverrides) { o.forwarder = f }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) RelayOption {
	return func(o *relayOverrides) { o.observability = obs }
}

// RelayRuntime runs the edge relay: field listener → assembler → window →
// forwarder, one cycle at a time.
type RelayRuntime struct {
	cfg        *config.Config
	obs        ports.Observability
	listener   ports.FieldListener
	relay      *relay.Relay
	metricsSrv *http.Server
}

func NewRelayRuntime(cfg *config.Config, opts ...RelayOption) (*RelayRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides relayOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	variant, err := cfg.Variant.Variant()
	if err != nil {
		return nil, err
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(prometheus.DefaultRegisterer)
	}

	fwd := overrides.forwarder
	if fwd == nil {
		fwd = forward.NewHTTPForwarder(cfg.Relay.IngestURL, variant, cfg.Relay.ForwardTimeout)
	}

	rel := relay.New(variant, cfg.Relay.WindowCapacity, fwd, obs)

	listener := overrides.listener
	if listener == nil {
		listener, err = opcua.NewListener(cfg.Relay.OPCUA, obs)
		if err != nil {
			return nil, err
		}
	}

	return &RelayRuntime{
		cfg:      cfg,
		obs:      obs,
		listener: listener,
		relay:    rel,
	}, nil
}

// Start begins consuming trigger notifications and serves metrics.
func (r *RelayRuntime) Start() error {
	if err := r.listener.Start(r.relay.Cycle); err != nil {
		return err
	}
	r.startMetrics()
	return nil
}

// Run starts the runtime and blocks until the context is cancelled.
func (r *RelayRuntime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	r.obs.LogInfo("relay_started",
		ports.Field{Key: "endpoint", Value: r.cfg.Relay.OPCUA.Endpoint},
		ports.Field{Key: "window_capacity", Value: r.cfg.Relay.WindowCapacity})
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

func (r *RelayRuntime) Shutdown(ctx context.Context) error {
	var errs []error
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if err := r.listener.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *RelayRuntime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Relay.MetricsAddr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
}

// IngestRuntime runs the ingestion service: HTTP API, validator, record
// store, and the optional Redis read cache.
type IngestRuntime struct {
	cfg    *config.Config
	db     *sql.DB
	redis  *cache.RedisCache
	server *http.Server
}

func NewIngestRuntime(cfg *config.Config) (*IngestRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	variant, err := cfg.Variant.Variant()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.Ingest.Database.ConnString())
	if err != nil {
		return nil, err
	}

	recordStore := store.NewPostgresStore(db)
	// Schema setup is the one fatal persistence path: without it the
	// process refuses to start.
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := recordStore.InitSchema(initCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	var redisCache *cache.RedisCache
	if cfg.Ingest.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCache(cfg.Ingest.Redis.Addr, cfg.Ingest.Redis.Password, cfg.Ingest.Redis.DB)
		if err != nil {
			log.Printf("redis unavailable, serving without cache: %v", err)
			redisCache = nil
		}
	}

	handler := ingest.NewHandler(ingest.NewValidator(variant), recordStore, redisCache)
	router := ingest.NewRouter(handler)

	return &IngestRuntime{
		cfg:   cfg,
		db:    db,
		redis: redisCache,
		server: &http.Server{
			Addr:         cfg.Ingest.ListenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (i *IngestRuntime) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("ingestion service listening on %s", i.cfg.Ingest.ListenAddr)
		if err := i.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return i.Shutdown(shutdownCtx)
}

func (i *IngestRuntime) Shutdown(ctx context.Context) error {
	var errs []error
	if err := i.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := i.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
