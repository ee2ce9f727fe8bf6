// Package store persists telemetry records in Postgres. The table is an
// append-only log keyed by a serial id; records are never updated or
// deleted after insert.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id BIGSERIAL PRIMARY KEY,
	machine_id VARCHAR(100) NOT NULL,
	timestep VARCHAR(100) NOT NULL,
	simulation_time VARCHAR(50),
	num_nodes INTEGER NOT NULL,
	temperatures DOUBLE PRECISION[] NOT NULL,
	power_consumption DOUBLE PRECISION NOT NULL,
	vibration DOUBLE PRECISION,
	received_at TIMESTAMPTZ NOT NULL,
	min_temp DOUBLE PRECISION,
	max_temp DOUBLE PRECISION,
	mean_temp DOUBLE PRECISION,
	std_temp DOUBLE PRECISION
)`

const schemaIndex = `
CREATE INDEX IF NOT EXISTS idx_machine_timestep
ON telemetry(machine_id, timestep)`

const recordColumns = `id, machine_id, timestep, simulation_time, num_nodes, temperatures,
	power_consumption, vibration, received_at, min_temp, max_temp, mean_temp, std_temp`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitSchema creates the telemetry table and its machine/timestep index.
// Callers treat a failure here as fatal: the process refuses to start
// without a usable schema.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &domain.PersistenceError{Op: "init schema", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, schemaIndex); err != nil {
		return &domain.PersistenceError{Op: "init schema index", Err: err}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, agg *domain.AggregatedSample, st domain.Stats, receivedAt time.Time) (int64, error) {
	const q = `INSERT INTO telemetry
		(machine_id, timestep, simulation_time, num_nodes, temperatures, power_consumption,
		 vibration, received_at, min_temp, max_temp, mean_temp, std_temp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		agg.MachineID,
		agg.Timestep,
		agg.SimulationTime,
		agg.NodeCount,
		pq.Array(agg.Temperatures),
		agg.PowerConsumption,
		agg.Vibration,
		receivedAt,
		st.Min,
		st.Max,
		st.Mean,
		st.Std,
	).Scan(&id)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "insert", Err: err}
	}
	return id, nil
}

// List returns every record. The ordering asymmetry is deliberate and
// matches the deployed service: unfiltered reads are newest-first,
// per-machine reads are oldest-first.
func (s *PostgresStore) List(ctx context.Context, machineID string) ([]domain.TelemetryRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if machineID != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM telemetry WHERE machine_id = $1 ORDER BY received_at ASC`,
			machineID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM telemetry ORDER BY received_at DESC`)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	records := make([]domain.TelemetryRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "list scan", Err: err}
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list rows", Err: err}
	}
	return records, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.TelemetryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM telemetry WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get", Err: err}
	}
	return rec, nil
}

func (s *PostgresStore) Machines(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT machine_id FROM telemetry ORDER BY machine_id`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "machines", Err: err}
	}
	defer rows.Close()

	machines := make([]string, 0)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, &domain.PersistenceError{Op: "machines scan", Err: err}
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "machines rows", Err: err}
	}
	return machines, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry`).Scan(&n); err != nil {
		return 0, &domain.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TelemetryRecord, error) {
	var (
		rec       domain.TelemetryRecord
		simTime   sql.NullString
		vibration sql.NullFloat64
		temps     pq.Float64Array
	)
	err := row.Scan(
		&rec.ID,
		&rec.MachineID,
		&rec.Timestep,
		&simTime,
		&rec.NodeCount,
		&temps,
		&rec.PowerConsumption,
		&vibration,
		&rec.ReceivedAt,
		&rec.Stats.Min,
		&rec.Stats.Max,
		&rec.Stats.Mean,
		&rec.Stats.Std,
	)
	if err != nil {
		return nil, err
	}
	rec.SimulationTime = simTime.String
	rec.Vibration = vibration.Float64
	rec.Temperatures = []float64(temps)
	return &rec, nil
}

var _ ports.RecordStore = (*PostgresStore)(nil)
