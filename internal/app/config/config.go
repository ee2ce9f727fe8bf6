// Package config loads the YAML configuration shared by the relay and the
// ingestion service. Deployment-sensitive values (database credentials,
// sink URL, window capacity) can be overridden from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/adapters/opcua"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

type Config struct {
	Variant VariantConfig `yaml:"variant"`
	Relay   RelayConfig   `yaml:"relay"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// VariantConfig selects the deployment payload shape. Name picks the
// preset ("nodes" or "grid"); expected_nodes and encoding may be
// overridden for test rigs with smaller vectors.
type VariantConfig struct {
	Name          string `yaml:"name"`
	ExpectedNodes int    `yaml:"expected_nodes"`
	Encoding      string `yaml:"encoding"`
}

type RelayConfig struct {
	OPCUA          opcua.Config  `yaml:"opcua"`
	WindowCapacity int           `yaml:"window_capacity"`
	IngestURL      string        `yaml:"ingest_url"`
	ForwardTimeout time.Duration `yaml:"forward_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

type IngestConfig struct {
	ListenAddr string         `yaml:"listen_addr"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig is optional; an empty addr disables the read cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Ingest.Database.Host, "DB_HOST")
	overrideString(&c.Ingest.Database.Port, "DB_PORT")
	overrideString(&c.Ingest.Database.Name, "DB_NAME")
	overrideString(&c.Ingest.Database.User, "DB_USER")
	overrideString(&c.Ingest.Database.Password, "DB_PASSWORD")
	overrideString(&c.Ingest.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Relay.IngestURL, "INGEST_URL")
	if v := os.Getenv("WINDOW_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Relay.WindowCapacity = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Variant.Name == "" {
		c.Variant.Name = domain.VariantNodes
	}
	if c.Relay.WindowCapacity == 0 {
		c.Relay.WindowCapacity = 4
	}
	if c.Relay.IngestURL == "" {
		c.Relay.IngestURL = "http://localhost:8067/telemetry"
	}
	if c.Relay.ForwardTimeout == 0 {
		c.Relay.ForwardTimeout = 10 * time.Second
	}
	if c.Relay.MetricsAddr == "" {
		c.Relay.MetricsAddr = ":9100"
	}
	if c.Relay.OPCUA.Endpoint == "" {
		c.Relay.OPCUA.Endpoint = "opc.tcp://localhost:4840/telemetry/server/"
	}
	if c.Ingest.ListenAddr == "" {
		c.Ingest.ListenAddr = ":8067"
	}
	db := &c.Ingest.Database
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.Name == "" {
		db.Name = "telemetry_db"
	}
	if db.User == "" {
		db.User = "postgres"
	}
	if db.Password == "" {
		db.Password = "postgres"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}

	c.Relay.OPCUA.ApplyDefaults()
}

func (c *Config) validate() error {
	if _, err := c.Variant.Variant(); err != nil {
		return err
	}
	if err := c.Relay.OPCUA.Validate(); err != nil {
		return fmt.Errorf("opcua config: %w", err)
	}
	if c.Relay.WindowCapacity < 1 {
		return fmt.Errorf("relay.window_capacity must be >= 1")
	}
	if _, err := url.Parse(c.Relay.IngestURL); err != nil {
		return fmt.Errorf("relay.ingest_url: %w", err)
	}
	return nil
}

// Variant resolves the configured preset plus overrides.
func (v VariantConfig) Variant() (domain.Variant, error) {
	var out domain.Variant
	switch v.Name {
	case domain.VariantNodes, "":
		out = domain.NodesVariant()
	case domain.VariantGrid:
		out = domain.GridVariant()
	default:
		return domain.Variant{}, fmt.Errorf("unknown variant %q", v.Name)
	}
	if v.ExpectedNodes > 0 {
		out.ExpectedNodes = v.ExpectedNodes
	}
	switch v.Encoding {
	case "":
	case string(domain.EncodingArray):
		out.Encoding = domain.EncodingArray
	case string(domain.EncodingCSV):
		out.Encoding = domain.EncodingCSV
	default:
		return domain.Variant{}, fmt.Errorf("unknown temperature encoding %q", v.Encoding)
	}
	return out, nil
}

// ConnString renders the lib/pq connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
