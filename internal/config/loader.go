package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "escrowboard.yaml"

// Overrides carries command-line flag values. Empty fields leave the
// loaded configuration untouched.
type Overrides struct {
	Port     string
	LogLevel string
	Backend  string
	DSN      string
	NATSURL  string
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	return LoadWithOverrides(yamlPath, Overrides{})
}

// LoadWithOverrides is LoadFrom with command-line overrides applied last.
func LoadWithOverrides(yamlPath string, o Overrides) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyOverrides(&cfg, o)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ESCROW_PORT")
	setString(&cfg.Server.CORSOrigin, "ESCROW_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ESCROW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ESCROW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ESCROW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ESCROW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ESCROW_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "ESCROW_NATS_STREAM")
	setString(&cfg.Logging.Level, "ESCROW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ESCROW_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ESCROW_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "ESCROW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ESCROW_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "ESCROW_RATE_RPS")
	setInt(&cfg.Rate.Burst, "ESCROW_RATE_BURST")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "ESCROW_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "ESCROW_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "ESCROW_CACHE_L2_TTL")
	setDuration(&cfg.Cache.TaskTTL, "ESCROW_CACHE_TASK_TTL")
	setDuration(&cfg.Cache.ArbiterTTL, "ESCROW_CACHE_ARBITER_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "ESCROW_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "ESCROW_IDEMPOTENCY_TTL")

	// Telemetry
	setBool(&cfg.OTEL.Enabled, "ESCROW_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	// Board
	setString(&cfg.Board.Backend, "ESCROW_BACKEND")
	setDuration(&cfg.Board.MinImplementationDuration, "ESCROW_MIN_IMPLEMENTATION_DURATION")
	setString(&cfg.Board.CustodyAccount, "ESCROW_CUSTODY_ACCOUNT")
	setList(&cfg.Board.Arbiters, "ESCROW_ARBITERS")
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Port != "" {
		cfg.Server.Port = o.Port
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.Backend != "" {
		cfg.Board.Backend = o.Backend
	}
	if o.DSN != "" {
		cfg.Postgres.DSN = o.DSN
	}
	if o.NATSURL != "" {
		cfg.NATS.URL = o.NATSURL
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Board.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("board.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, cfg.Board.Backend)
	}
	if cfg.Board.MinImplementationDuration <= 0 {
		return errors.New("board.min_implementation_duration must be > 0")
	}
	if strings.TrimSpace(cfg.Board.CustodyAccount) == "" {
		return errors.New("board.custody_account is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	for i, s := range cfg.Ledger.Seed {
		if s.Account == "" || s.Token == "" {
			return fmt.Errorf("ledger.seed[%d]: account and token are required", i)
		}
		if s.Balance.IsNegative() || s.Allowance.IsNegative() {
			return fmt.Errorf("ledger.seed[%d]: amounts must not be negative", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
