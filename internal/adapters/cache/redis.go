// Package cache is an optional Redis read cache in front of the record
// store. The ingestion service works identically without it; a nil
// *RedisCache simply means every read goes to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

const (
	// MachinesKey caches the distinct machine list.
	MachinesKey = "telemetry:machines"
	// RecordKeyPrefix caches individual records by id. Records are
	// immutable once stored, so entries never need invalidation.
	RecordKeyPrefix = "telemetry:record:"

	MachinesTTL = 30 * time.Second
	RecordTTL   = 1 * time.Hour
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) CacheMachines(ctx context.Context, machines []string) error {
	data, err := json.Marshal(machines)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, MachinesKey, data, MachinesTTL).Err()
}

func (r *RedisCache) GetMachines(ctx context.Context) ([]string, bool) {
	data, err := r.client.Get(ctx, MachinesKey).Bytes()
	if err != nil {
		return nil, false
	}
	var machines []string
	if err := json.Unmarshal(data, &machines); err != nil {
		return nil, false
	}
	return machines, true
}

// InvalidateMachines drops the machine list after an insert so a new
// machine id shows up on the next read.
func (r *RedisCache) InvalidateMachines(ctx context.Context) error {
	return r.client.Del(ctx, MachinesKey).Err()
}

func (r *RedisCache) CacheRecord(ctx context.Context, rec *domain.TelemetryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d", RecordKeyPrefix, rec.ID)
	return r.client.Set(ctx, key, data, RecordTTL).Err()
}

func (r *RedisCache) GetRecord(ctx context.Context, id int64) (*domain.TelemetryRecord, bool) {
	data, err := r.client.Get(ctx, fmt.Sprintf("%s%d", RecordKeyPrefix, id)).Bytes()
	if err != nil {
		return nil, false
	}
	var rec domain.TelemetryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
