package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputCSV   = "csv"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	API           APIConfig
	Query         QueryConfig
	Poll          PollConfig
	Output        OutputConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Metrics       MetricsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type APIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type QueryConfig struct {
	ID string
}

type PollConfig struct {
	Interval         time.Duration
	MaxAttempts      int
	Timeout          time.Duration
	TransientRetries int
}

type OutputConfig struct {
	Format string
}

type ExportConfig struct {
	ParquetPath      string
	Upload           bool
	PostgresDSN      string
	PostgresMaxConns int
	DuckDBPath       string
	Table            string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type MetricsConfig struct {
	PushURL string
	JobName string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DUNEFETCH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DUNEFETCH_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "DUNEFETCH_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "DUNEFETCH_API_URL", &cfg.API.BaseURL) },
		func() error { return applyString(lookup, "DUNEFETCH_API_KEY", &cfg.API.APIKey) },
		func() error { return applyDuration(lookup, "DUNEFETCH_API_TIMEOUT", &cfg.API.Timeout) },
		func() error { return applyString(lookup, "DUNEFETCH_QUERY_ID", &cfg.Query.ID) },
		func() error { return applyDuration(lookup, "DUNEFETCH_POLL_INTERVAL", &cfg.Poll.Interval) },
		func() error { return applyInt(lookup, "DUNEFETCH_POLL_MAX_ATTEMPTS", &cfg.Poll.MaxAttempts) },
		func() error { return applyDuration(lookup, "DUNEFETCH_POLL_TIMEOUT", &cfg.Poll.Timeout) },
		func() error { return applyInt(lookup, "DUNEFETCH_POLL_TRANSIENT_RETRIES", &cfg.Poll.TransientRetries) },
		func() error { return applyString(lookup, "DUNEFETCH_OUTPUT", &cfg.Output.Format) },
		func() error { return applyString(lookup, "DUNEFETCH_EXPORT_PARQUET_PATH", &cfg.Export.ParquetPath) },
		func() error { return applyBool(lookup, "DUNEFETCH_EXPORT_UPLOAD", &cfg.Export.Upload) },
		func() error { return applyString(lookup, "DUNEFETCH_EXPORT_POSTGRES_DSN", &cfg.Export.PostgresDSN) },
		func() error {
			return applyInt(lookup, "DUNEFETCH_EXPORT_POSTGRES_MAX_CONNS", &cfg.Export.PostgresMaxConns)
		},
		func() error { return applyString(lookup, "DUNEFETCH_EXPORT_DUCKDB_PATH", &cfg.Export.DuckDBPath) },
		func() error { return applyString(lookup, "DUNEFETCH_EXPORT_TABLE", &cfg.Export.Table) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "DUNEFETCH_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "DUNEFETCH_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "DUNEFETCH_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "DUNEFETCH_METRICS_PUSH_URL", &cfg.Metrics.PushURL) },
		func() error { return applyString(lookup, "DUNEFETCH_METRICS_JOB", &cfg.Metrics.JobName) },
		func() error { return applyBool(lookup, "DUNEFETCH_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "DUNEFETCH_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants that do not depend on which command runs.
// Callers re-run it after applying flag overrides.
func (c Config) Validate() error {
	return c.validate()
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be > 0")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll max attempts must be >= 0")
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("poll timeout must be >= 0")
	}
	if c.Poll.MaxAttempts == 0 && c.Poll.Timeout == 0 {
		return fmt.Errorf("poll max attempts or poll timeout must be set")
	}
	if c.Poll.TransientRetries < 0 {
		return fmt.Errorf("poll transient retries must be >= 0")
	}
	switch c.Output.Format {
	case OutputTable, OutputJSON, OutputCSV:
	default:
		return fmt.Errorf("unsupported output format %q: use 'table', 'json' or 'csv'", c.Output.Format)
	}
	if c.Export.Upload && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required when upload is enabled")
	}
	if c.Export.PostgresMaxConns < 1 {
		return fmt.Errorf("postgres max conns must be >= 1")
	}
	if (c.Export.PostgresDSN != "" || c.Export.DuckDBPath != "") && c.Export.Table == "" {
		return fmt.Errorf("export table is required for sql sinks")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dunefetch"},
		API: APIConfig{
			BaseURL: "https://api.dune.com/api/v1",
			Timeout: 30 * time.Second,
		},
		Poll: PollConfig{
			Interval:         10 * time.Second,
			MaxAttempts:      360,
			Timeout:          time.Hour,
			TransientRetries: 0,
		},
		Output: OutputConfig{
			Format: OutputTable,
		},
		Export: ExportConfig{
			PostgresMaxConns: 2,
			Table:            "dune_results",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "dunefetch",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Metrics: MetricsConfig{
			JobName: "dunefetch",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Poll.Interval = 100 * time.Millisecond
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
