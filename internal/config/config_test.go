package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.NotEmpty(t, cfg.Database.Path, "default db path should be derived from home dir")

	require.Equal(t, 15000, cfg.Engine.TickIntervalMS)
	require.Equal(t, 100, cfg.Engine.ClaimBatchSize)
	require.Equal(t, 60, cfg.Engine.RetryDelayS)
	require.Equal(t, 3, cfg.Engine.MaxAttempts)
	require.Equal(t, 100, cfg.Engine.NodesPerBatchLimit)
	require.Equal(t, 300, cfg.Engine.LeaseTTLS)
	require.Equal(t, 4, cfg.Engine.WorkerCount)
	require.True(t, cfg.Engine.WatchDatabase)

	require.Equal(t, "console", cfg.Providers.SMS)
	require.Equal(t, "console", cfg.Providers.Email)

	require.Equal(t, "info", cfg.Logging.Level)

	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)

	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "127.0.0.1:9090", cfg.Metrics.Listen)
}

func TestDefaultsAreValid(t *testing.T) {
	err := Validate(Defaults())
	require.NoError(t, err, "defaults must pass their own validation")
}

func TestEngineConfig_Durations(t *testing.T) {
	e := EngineConfig{TickIntervalMS: 1500, RetryDelayS: 90, LeaseTTLS: 300}
	require.Equal(t, 1500*time.Millisecond, e.TickInterval())
	require.Equal(t, 90*time.Second, e.RetryDelay())
	require.Equal(t, 5*time.Minute, e.LeaseTTL())
}

func TestValidateDatabase_EmptyDriverValid(t *testing.T) {
	err := ValidateDatabase(DatabaseConfig{})
	require.NoError(t, err, "empty driver should be valid (uses sqlite)")
}

func TestValidateDatabase_PostgresRequiresDSN(t *testing.T) {
	err := ValidateDatabase(DatabaseConfig{Driver: "postgres"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres_dsn is required")

	err = ValidateDatabase(DatabaseConfig{Driver: "postgres", PostgresDSN: "postgres://localhost/followup"})
	require.NoError(t, err)
}

func TestValidateDatabase_UnknownDriver(t *testing.T) {
	err := ValidateDatabase(DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "database.driver")
}

func TestValidateEngine_Defaults(t *testing.T) {
	err := ValidateEngine(Defaults().Engine)
	require.NoError(t, err)
}

func TestValidateEngine_Bounds(t *testing.T) {
	base := Defaults().Engine

	e := base
	e.TickIntervalMS = 50
	require.Error(t, ValidateEngine(e), "sub-100ms ticks should be rejected")

	e = base
	e.ClaimBatchSize = 0
	require.Error(t, ValidateEngine(e))

	e = base
	e.RetryDelayS = -1
	require.Error(t, ValidateEngine(e))

	e = base
	e.MaxAttempts = 0
	require.Error(t, ValidateEngine(e))

	e = base
	e.NodesPerBatchLimit = 0
	require.Error(t, ValidateEngine(e))

	e = base
	e.LeaseTTLS = 0
	require.Error(t, ValidateEngine(e))

	e = base
	e.WorkerCount = 0
	require.Error(t, ValidateEngine(e))
}

func TestValidateEngine_ZeroRetryDelayValid(t *testing.T) {
	e := Defaults().Engine
	e.RetryDelayS = 0
	require.NoError(t, ValidateEngine(e), "immediate retry is a valid configuration")
}

func TestValidateProviders_Empty(t *testing.T) {
	err := ValidateProviders(ProvidersConfig{})
	require.NoError(t, err, "empty providers should be valid (uses console)")
}

func TestValidateProviders_Invalid(t *testing.T) {
	err := ValidateProviders(ProvidersConfig{SMS: "carrier-pigeon"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "providers.sms")

	err = ValidateProviders(ProvidersConfig{Email: "smtp"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "providers.email")
}

func TestValidateLogging(t *testing.T) {
	require.NoError(t, ValidateLogging(LoggingConfig{}))
	require.NoError(t, ValidateLogging(LoggingConfig{Level: "debug"}))

	err := ValidateLogging(LoggingConfig{Level: "verbose"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logging.level")
}

func TestValidateTracing_SampleRateRange(t *testing.T) {
	err := ValidateTracing(TracingConfig{SampleRate: 1.5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sample_rate")

	err = ValidateTracing(TracingConfig{SampleRate: -0.1})
	require.Error(t, err)
}

func TestValidateTracing_ExporterOptions(t *testing.T) {
	for _, exp := range []string{"", "none", "file", "stdout", "otlp"} {
		err := ValidateTracing(TracingConfig{Exporter: exp, SampleRate: 1.0, FilePath: "x", OTLPEndpoint: "y"})
		require.NoError(t, err, "exporter %q should be valid", exp)
	}

	err := ValidateTracing(TracingConfig{Exporter: "jaeger", SampleRate: 1.0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "tracing.exporter")
}

func TestValidateTracing_EnabledRequiresPaths(t *testing.T) {
	err := ValidateTracing(TracingConfig{Enabled: true, Exporter: "file", SampleRate: 1.0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "file_path is required")

	err = ValidateTracing(TracingConfig{Enabled: true, Exporter: "otlp", SampleRate: 1.0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "otlp_endpoint is required")

	// Disabled tracing skips the path checks.
	err = ValidateTracing(TracingConfig{Enabled: false, Exporter: "file", SampleRate: 1.0})
	require.NoError(t, err)
}

func TestValidateMetrics(t *testing.T) {
	require.NoError(t, ValidateMetrics(MetricsConfig{Enabled: false}))

	err := ValidateMetrics(MetricsConfig{Enabled: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics.listen")

	require.NoError(t, ValidateMetrics(MetricsConfig{Enabled: true, Listen: ":9090"}))
}

func TestDefaultConfigTemplate_IsValidYAML(t *testing.T) {
	var raw map[string]any
	err := yaml.Unmarshal([]byte(DefaultConfigTemplate()), &raw)
	require.NoError(t, err, "template must parse as YAML")

	require.Contains(t, raw, "database")
	require.Contains(t, raw, "engine")
	require.Contains(t, raw, "providers")
	require.Contains(t, raw, "logging")
	require.Contains(t, raw, "metrics")

	engine, ok := raw["engine"].(map[string]any)
	require.True(t, ok, "engine section should be a mapping")
	require.Equal(t, 15000, engine["tick_interval_ms"])
	require.Equal(t, 300, engine["lease_ttl_s"])
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	err := WriteDefaultConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
