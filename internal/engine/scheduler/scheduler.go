// Package scheduler hosts the tick loop: sweep contact events and
// scheduled triggers into enrollments, claim due executions, and
// dispatch them to the executor on a bounded worker pool. It also owns
// the Enroller, the one primitive every trigger source funnels through.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/executor"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/pubsub"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/tracing"
	"github.com/zjrosen/followup/internal/workflow"
)

// Defaults for the tick loop.
const (
	DefaultTickInterval   = 15 * time.Second
	DefaultClaimBatchSize = 100
	DefaultLeaseTTL       = 5 * time.Minute
	DefaultWorkerCount    = 4
)

// Config tunes the tick loop.
type Config struct {
	TickInterval   time.Duration
	ClaimBatchSize int
	LeaseTTL       time.Duration
	WorkerCount    int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ClaimBatchSize <= 0 {
		c.ClaimBatchSize = DefaultClaimBatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	return c
}

// Flusher is anything holding per-tick cached state.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Deps carries the scheduler's collaborators. Broker, Flushers,
// Metrics, and Tracer may be nil or empty.
type Deps struct {
	Executor   *executor.Executor
	Enroller   *Enroller
	Workflows  workflow.Repository
	Contacts   contact.Repository
	Events     contact.EventRepository
	Executions enrollment.ExecutionRepository
	Settings   settings.Repository
	Flushers   []Flusher
	Broker     *pubsub.Broker[*contact.Event]
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
}

// TickStats summarizes one tick.
type TickStats struct {
	Due       int
	Claimed   int
	Completed int
	Failed    int
	Waiting   int
}

// Scheduler drives the engine.
type Scheduler struct {
	cfg    Config
	deps   Deps
	holder string
	nudge  chan struct{}
	now    func() time.Time
}

// New creates a scheduler with a process-unique lease holder identity.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("scheduler")
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "followup"
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		holder: fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8]),
		nudge:  make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Holder returns the lease-holder identity claims are made under.
func (s *Scheduler) Holder() string {
	return s.holder
}

// Nudge requests a tick as soon as possible. Safe from any goroutine;
// redundant nudges collapse into one.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Run ticks on the configured cadence until ctx is cancelled. Contact
// events arriving on the broker and external nudges trigger early
// ticks; the durable event rows make both pure latency optimizations.
func (s *Scheduler) Run(ctx context.Context) error {
	var events <-chan pubsub.Event[*contact.Event]
	if s.deps.Broker != nil {
		events = s.deps.Broker.Subscribe(ctx)
	}
	log.Info(log.CatScheduler, "scheduler started",
		"tick_interval", s.cfg.TickInterval.String(),
		"claim_batch_size", s.cfg.ClaimBatchSize,
		"workers", s.cfg.WorkerCount,
		"holder", s.holder)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatScheduler, "scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.nudge:
			s.Tick(ctx)
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.Tick(ctx)
		}
	}
}

// Tick runs one full cycle synchronously: flush per-tick caches, sweep
// events and scheduled triggers, claim due executions, and dispatch
// them, returning when the whole batch has finished.
func (s *Scheduler) Tick(ctx context.Context) TickStats {
	start := time.Now()
	ctx, span := s.deps.Tracer.Start(ctx, tracing.SpanTick)
	defer span.End()

	var stats TickStats

	for _, f := range s.deps.Flushers {
		if err := f.Flush(ctx); err != nil {
			log.ErrorErr(log.CatCache, "failed to flush tick cache", err)
		}
	}

	s.sweepEvents(ctx)
	s.sweepScheduled(ctx)

	now := s.now()
	if due, err := s.deps.Executions.DueCount(ctx, now); err != nil {
		log.ErrorErr(log.CatScheduler, "failed to count due executions", err)
	} else {
		stats.Due = due
		s.deps.Metrics.SetDueBacklog(due)
		span.SetAttributes(attribute.Int(tracing.AttrTickDue, due))
	}

	claimed, err := s.deps.Executions.ClaimDue(ctx, now, s.cfg.ClaimBatchSize, s.holder, s.cfg.LeaseTTL)
	if err != nil {
		log.ErrorErr(log.CatScheduler, "failed to claim due executions", err)
		span.RecordError(err)
		s.deps.Metrics.ObserveTick(time.Since(start), 0)
		return stats
	}
	stats.Claimed = len(claimed)
	span.SetAttributes(attribute.Int(tracing.AttrTickClaimed, len(claimed)))

	if len(claimed) > 0 {
		s.dispatch(ctx, claimed, &stats)
	}

	s.deps.Metrics.ObserveTick(time.Since(start), len(claimed))
	if stats.Claimed > 0 {
		log.Info(log.CatScheduler, "tick complete",
			"claimed", stats.Claimed,
			"completed", stats.Completed,
			"failed", stats.Failed,
			"waiting", stats.Waiting,
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		log.Debug(log.CatScheduler, "tick complete", "due", stats.Due)
	}
	return stats
}

// dispatch fans the claimed batch across the worker pool and waits for
// it. One execution failing never blocks the rest.
func (s *Scheduler) dispatch(ctx context.Context, claimed []*enrollment.Execution, stats *TickStats) {
	sem := make(chan struct{}, s.cfg.WorkerCount)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, x := range claimed {
		sem <- struct{}{}
		wg.Add(1)
		log.SafeGo("execute-batch", func() {
			defer wg.Done()
			defer func() { <-sem }()

			res := s.deps.Executor.Execute(ctx, x.ID)
			if res.Err != nil {
				log.ErrorErr(log.CatScheduler, "execution batch errored", res.Err,
					"execution_id", x.ID)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.Err != nil:
				stats.Failed++
			case res.Status == enrollment.ExecCompleted:
				stats.Completed++
			case res.Status == enrollment.ExecFailed:
				stats.Failed++
			case res.Status == enrollment.ExecWaiting:
				stats.Waiting++
			}
		})
	}
	wg.Wait()
}
