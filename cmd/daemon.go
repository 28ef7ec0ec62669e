package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/followup/internal/config"
	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/executor"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/engine/processor"
	"github.com/zjrosen/followup/internal/engine/scheduler"
	"github.com/zjrosen/followup/internal/infrastructure"
	"github.com/zjrosen/followup/internal/infrastructure/sqlite"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/tracing"
	"github.com/zjrosen/followup/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the followup engine",
	Long: `Run the engine as a long-lived process: the scheduler ticks on an
interval, claims due executions, and walks each one through its workflow
graph. Contact mutations made through this process trigger early ticks;
mutations from other processes are picked up by the database watcher or
at the next interval.

A small HTTP listener serves /healthz and Prometheus /metrics.

Example:
  followup daemon                  # Run with config defaults
  followup daemon --log-console    # Mirror log lines to stderr`,
	RunE: runDaemon,
}

var daemonLogConsole bool

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&daemonLogConsole, "log-console", false,
		"mirror log lines to stderr")
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := initLogging(daemonLogConsole)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer cleanup()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = store.Close() }()

	tcfg := cfg.Tracing
	if tcfg.Exporter == "file" && tcfg.FilePath == "" {
		tcfg.FilePath = config.DefaultTracesFilePath()
	}
	traces, err := tracing.NewProvider(tracing.Config{
		Enabled:      tcfg.Enabled,
		Exporter:     tcfg.Exporter,
		FilePath:     tcfg.FilePath,
		OTLPEndpoint: tcfg.OTLPEndpoint,
		SampleRate:   tcfg.SampleRate,
		ServiceName:  "followup-engine",
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	m := metrics.New()

	contacts := contact.NewService(store.Contacts(), store.ContactEvents())
	defer contacts.Close()

	sched, err := buildEngine(store, contacts, m, traces.Tracer())
	if err != nil {
		return err
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start scheduler in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Run(ctx)
	}()

	var httpSrv *http.Server
	if cfg.Metrics.Enabled {
		httpSrv = newHTTPServer(cfg.Metrics.Listen, m, store)
		log.SafeGo("metrics-listener", func() {
			if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.ErrorErr(log.CatHTTP, "metrics listener failed", serveErr, "listen", cfg.Metrics.Listen)
			}
		})
	}

	w := startWatcher(store, sched)

	fmt.Printf("followup daemon started (driver: %s, tick: %s, holder: %s)\n",
		driverName(), cfg.Engine.TickInterval(), sched.Holder())
	if cfg.Metrics.Enabled {
		fmt.Printf("Metrics on http://%s/metrics\n", cfg.Metrics.Listen)
	}
	fmt.Println("Press Ctrl+C to stop")

	// Wait for shutdown signal or scheduler exit
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("scheduler error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if w != nil {
		if err := w.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "error stopping database watcher", err)
		}
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.ErrorErr(log.CatHTTP, "error stopping metrics listener", err)
		}
	}
	if err := traces.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatConfig, "error flushing traces", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}

// buildEngine wires the execution stack over the store: settings and
// template caches, providers, enroller, processor registry, executor,
// and scheduler. Shared by the daemon and the one-shot tick command.
func buildEngine(store infrastructure.Store, contacts *contact.Service, m *metrics.Metrics, tracer trace.Tracer) (*scheduler.Scheduler, error) {
	settingsSvc := settings.NewService(store.Settings())
	cachedSettings := processor.NewCachedSettings(settingsSvc)
	cachedTemplates := processor.NewCachedTemplates(store.Templates())

	sms, email, err := buildProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}

	enroller := scheduler.NewEnroller(scheduler.EnrollerDeps{
		Workflows:   store.Workflows(),
		Enrollments: store.Enrollments(),
		Executions:  store.Executions(),
		Metrics:     m,
		Tracer:      tracer,
	}, cfg.Engine.MaxAttempts)

	registry := processor.DefaultRegistry(processor.Deps{
		Contacts:    store.Contacts(),
		Workflows:   store.Workflows(),
		Enrollments: store.Enrollments(),
		Messages:    store.Messages(),
		Templates:   cachedTemplates,
		Settings:    cachedSettings,
		SMS:         sms,
		Email:       email,
		Starter:     enroller,
		Metrics:     m,
	})

	exec := executor.New(executor.Config{
		RetryDelay:    cfg.Engine.RetryDelay(),
		NodesPerBatch: cfg.Engine.NodesPerBatchLimit,
	}, executor.Deps{
		Workflows:     store.Workflows(),
		Enrollments:   store.Enrollments(),
		Executions:    store.Executions(),
		Logs:          store.ExecutionLogs(),
		Contacts:      store.Contacts(),
		Notifications: store.Notifications(),
		Registry:      registry,
		Metrics:       m,
		Tracer:        tracer,
	})

	return scheduler.New(scheduler.Config{
		TickInterval:   cfg.Engine.TickInterval(),
		ClaimBatchSize: cfg.Engine.ClaimBatchSize,
		LeaseTTL:       cfg.Engine.LeaseTTL(),
		WorkerCount:    cfg.Engine.WorkerCount,
	}, scheduler.Deps{
		Executor:   exec,
		Enroller:   enroller,
		Workflows:  store.Workflows(),
		Contacts:   store.Contacts(),
		Events:     store.ContactEvents(),
		Executions: store.Executions(),
		Settings:   store.Settings(),
		Flushers:   []scheduler.Flusher{cachedSettings, cachedTemplates},
		Broker:     contacts.Broker(),
		Metrics:    m,
		Tracer:     tracer,
	}), nil
}

// buildProviders constructs the delivery adapters named in config.
// Live adapters read their credentials from the settings table per send,
// so a twilio/sendgrid selection here works even before credentials are
// stored; sends fail with PROVIDER_NOT_CONFIGURED until they are.
func buildProviders(p config.ProvidersConfig) (provider.SMSProvider, provider.EmailProvider, error) {
	var sms provider.SMSProvider
	switch p.SMS {
	case "", "console":
		sms = provider.ConsoleSMS{}
	case "memory":
		sms = &provider.MemorySMS{}
	case "twilio":
		sms = &provider.Twilio{}
	default:
		return nil, nil, fmt.Errorf("unknown sms provider %q", p.SMS)
	}

	var email provider.EmailProvider
	switch p.Email {
	case "", "console":
		email = provider.ConsoleEmail{}
	case "memory":
		email = &provider.MemoryEmail{}
	case "sendgrid":
		email = &provider.SendGrid{}
	default:
		return nil, nil, fmt.Errorf("unknown email provider %q", p.Email)
	}
	return sms, email, nil
}

// startWatcher starts the database file watcher when the store is a
// file-backed SQLite database and watching is enabled. The watcher is
// an optimization; failure to start it only logs.
func startWatcher(store infrastructure.Store, sched *scheduler.Scheduler) *watcher.Watcher {
	if !cfg.Engine.WatchDatabase {
		return nil
	}
	db, ok := store.(*sqlite.DB)
	if !ok || db.Path() == ":memory:" {
		return nil
	}

	w, err := watcher.New(db.Path(), watcher.DefaultDebounce)
	if err != nil {
		log.ErrorErr(log.CatWatcher, "failed to create database watcher", err, "path", db.Path())
		return nil
	}
	changes, err := w.Start()
	if err != nil {
		log.ErrorErr(log.CatWatcher, "failed to start database watcher", err, "path", db.Path())
		_ = w.Stop()
		return nil
	}
	log.SafeGo("watcher-nudge", func() {
		for range changes {
			log.Debug(log.CatWatcher, "database changed externally, nudging scheduler")
			sched.Nudge()
		}
	})
	log.Info(log.CatWatcher, "watching database file", "path", db.Path())
	return w
}

// newHTTPServer builds the daemon's listener: Prometheus metrics plus a
// health probe that round-trips the store.
func newHTTPServer(listen string, m *metrics.Metrics, store infrastructure.Store) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		// A missing key still proves the store answers queries.
		_, err := store.Settings().Get(ctx, "health.probe")
		var nf *settings.NotFoundError
		if err != nil && !errors.As(err, &nf) {
			log.ErrorErr(log.CatHTTP, "health probe failed", err)
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte("store unavailable\n"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func driverName() string {
	if cfg.Database.Driver == "" {
		return "sqlite"
	}
	return cfg.Database.Driver
}
