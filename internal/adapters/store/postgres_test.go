package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

var recordCols = []string{
	"id", "machine_id", "timestep", "simulation_time", "num_nodes", "temperatures",
	"power_consumption", "vibration", "received_at", "min_temp", "max_temp", "mean_temp", "std_temp",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestInitSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS telemetry").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_machine_timestep").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInitSchemaFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS telemetry").
		WillReturnError(fmt.Errorf("permission denied"))

	err := s.InitSchema(context.Background())
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
}

func TestInsertReturnsID(t *testing.T) {
	s, mock := newMockStore(t)

	agg := &domain.AggregatedSample{
		MachineID:        "press_01",
		Timestep:         "4",
		SimulationTime:   "2.0",
		NodeCount:        3,
		Temperatures:     []float64{290.5, 291, 292.5},
		PowerConsumption: 40,
	}
	st := domain.Stats{Min: 290.5, Max: 292.5, Mean: 291.333, Std: 0.85}
	receivedAt := time.Now()

	mock.ExpectQuery("INSERT INTO telemetry").
		WithArgs("press_01", "4", "2.0", 3, sqlmock.AnyArg(), 40.0, 0.0, receivedAt,
			290.5, 292.5, 291.333, 0.85).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.Insert(context.Background(), agg, st, receivedAt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO telemetry").
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.Insert(context.Background(), &domain.AggregatedSample{}, domain.Stats{}, time.Now())
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if pe.Op != "insert" {
		t.Fatalf("op = %q", pe.Op)
	}
}

func TestListUnfilteredNewestFirst(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows(recordCols).
		AddRow(int64(2), "press_01", "2", "1.0", 3, "{1,2,3}", 10.0, nil, now, 1.0, 3.0, 2.0, 0.8).
		AddRow(int64(1), "press_01", "1", "0.5", 3, "{4,5,6}", 20.0, nil, now.Add(-time.Minute), 4.0, 6.0, 5.0, 0.8)

	mock.ExpectQuery(regexp.QuoteMeta("FROM telemetry ORDER BY received_at DESC")).
		WillReturnRows(rows)

	records, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ID != 2 {
		t.Fatalf("first record id = %d, want newest", records[0].ID)
	}
	if len(records[0].Temperatures) != 3 || records[0].Temperatures[2] != 3 {
		t.Fatalf("temperatures = %v", records[0].Temperatures)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListFilteredOldestFirst(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(recordCols).
		AddRow(int64(1), "press_02", "1", nil, 2, "{1,2}", 5.0, 0.3, time.Now(), 1.0, 2.0, 1.5, 0.5)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE machine_id = $1 ORDER BY received_at ASC")).
		WithArgs("press_02").
		WillReturnRows(rows)

	records, err := s.List(context.Background(), "press_02")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].MachineID != "press_02" {
		t.Fatalf("records = %+v", records)
	}
	if records[0].SimulationTime != "" {
		t.Fatalf("null simulation_time should scan empty, got %q", records[0].SimulationTime)
	}
	if records[0].Vibration != 0.3 {
		t.Fatalf("vibration = %v", records[0].Vibration)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetFound(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(recordCols).
		AddRow(int64(7), "m", "3", "1.5", 2, "{20,22}", 8.0, nil, time.Now(), 20.0, 22.0, 21.0, 1.0)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	rec, err := s.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.ID != 7 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Stats.Mean != 21 {
		t.Fatalf("stats = %+v", rec.Stats)
	}
}

func TestGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows(recordCols))

	rec, err := s.Get(context.Background(), 999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("record = %+v, want nil for missing id", rec)
	}
}

func TestMachines(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT machine_id FROM telemetry ORDER BY machine_id")).
		WillReturnRows(sqlmock.NewRows([]string{"machine_id"}).
			AddRow("press_01").AddRow("press_02"))

	machines, err := s.Machines(context.Background())
	if err != nil {
		t.Fatalf("machines: %v", err)
	}
	if len(machines) != 2 || machines[0] != "press_01" {
		t.Fatalf("machines = %v", machines)
	}
}

func TestCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM telemetry")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 12 {
		t.Fatalf("count = %d, want 12", n)
	}
}

func TestCountFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM telemetry")).
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := s.Count(context.Background())
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
}
