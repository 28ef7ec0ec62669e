// Package cmd wires the followup CLI: a daemon that runs the engine and
// a set of management commands that share its store.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/followup/internal/config"
	"github.com/zjrosen/followup/internal/infrastructure"
	"github.com/zjrosen/followup/internal/infrastructure/postgres"
	"github.com/zjrosen/followup/internal/infrastructure/sqlite"
	"github.com/zjrosen/followup/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "followup",
	Short: "A workflow engine for automated contact follow-up",
	Long: `Followup runs graph-shaped engagement workflows against a contact list:
timed SMS and email sequences with conditional branches, reply gates, and
sub-workflow calls. Progress is durable, so workflows survive restarts.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/followup/config.yaml)")
	rootCmd.PersistentFlags().String("db", "",
		"SQLite database file (overrides config)")

	// Bind flags to viper
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("database.driver", defaults.Database.Driver)
	viper.SetDefault("database.path", defaults.Database.Path)
	viper.SetDefault("database.postgres_dsn", defaults.Database.PostgresDSN)
	viper.SetDefault("engine.tick_interval_ms", defaults.Engine.TickIntervalMS)
	viper.SetDefault("engine.claim_batch_size", defaults.Engine.ClaimBatchSize)
	viper.SetDefault("engine.retry_delay_s", defaults.Engine.RetryDelayS)
	viper.SetDefault("engine.max_attempts", defaults.Engine.MaxAttempts)
	viper.SetDefault("engine.nodes_per_batch_limit", defaults.Engine.NodesPerBatchLimit)
	viper.SetDefault("engine.lease_ttl_s", defaults.Engine.LeaseTTLS)
	viper.SetDefault("engine.worker_count", defaults.Engine.WorkerCount)
	viper.SetDefault("engine.watch_database", defaults.Engine.WatchDatabase)
	viper.SetDefault("providers.sms", defaults.Providers.SMS)
	viper.SetDefault("providers.email", defaults.Providers.Email)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.console", defaults.Logging.Console)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.listen", defaults.Metrics.Listen)

	// FOLLOWUP_ENGINE_TICK_INTERVAL_MS overrides engine.tick_interval_ms
	viper.SetEnvPrefix("FOLLOWUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .followup/config.yaml (current directory)
		// 2. ~/.config/followup/config.yaml (user config)
		if _, err := os.Stat(".followup/config.yaml"); err == nil {
			viper.SetConfigFile(".followup/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "followup"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create the default in the user
		// config dir so the next run picks it up.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			if home, homeErr := os.UserHomeDir(); homeErr == nil {
				defaultPath := filepath.Join(home, ".config", "followup", "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// openStore opens the configured persistence backend. Callers own the
// returned store and must Close it.
func openStore() (infrastructure.Store, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		path := cfg.Database.Path
		if path == "" {
			path = config.DefaultDatabasePath()
		}
		if path == "" {
			return nil, fmt.Errorf("no database path configured and home directory unavailable")
		}
		return sqlite.NewDB(path)
	case "postgres":
		return postgres.NewStore(cfg.Database.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// initLogging configures the global logger from config. The returned
// cleanup closes the file sink.
func initLogging(console bool) (func(), error) {
	path := cfg.Logging.File
	if path == "" {
		path = config.DefaultLogFilePath()
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	return log.Init(log.Options{
		Path:     path,
		Console:  console || cfg.Logging.Console,
		MinLevel: log.ParseLevel(cfg.Logging.Level),
	})
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
