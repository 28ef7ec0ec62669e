// Package executor advances one claimed execution through its workflow
// graph: the walk loop, the retry ladder, and every enrollment and
// execution state transition. Processors decide transitions; only this
// package persists them.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/engine/processor"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/tracing"
	"github.com/zjrosen/followup/internal/workflow"
)

const (
	// DefaultRetryDelay is the fixed backoff after a recoverable error.
	DefaultRetryDelay = 60 * time.Second
	// DefaultNodesPerBatch caps immediate advances per batch; crossing
	// it is the cycle breaker.
	DefaultNodesPerBatch = 100
)

// Config tunes the walk loop.
type Config struct {
	RetryDelay    time.Duration
	NodesPerBatch int
}

func (c Config) withDefaults() Config {
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.NodesPerBatch <= 0 {
		c.NodesPerBatch = DefaultNodesPerBatch
	}
	return c
}

// Deps carries the executor's collaborators. Notifications, Metrics,
// and Tracer may be nil.
type Deps struct {
	Workflows     workflow.Repository
	Enrollments   enrollment.Repository
	Executions    enrollment.ExecutionRepository
	Logs          enrollment.LogRepository
	Contacts      contact.Repository
	Notifications notification.Repository
	Registry      *processor.Registry
	Metrics       *metrics.Metrics
	Tracer        trace.Tracer
}

// Executor runs execution batches.
type Executor struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// New creates an executor.
func New(cfg Config, deps Deps) *Executor {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("executor")
	}
	return &Executor{cfg: cfg.withDefaults(), deps: deps, now: time.Now}
}

// Result summarizes one execution batch.
type Result struct {
	ExecutionID    string
	Status         enrollment.ExecStatus
	NodesProcessed int
	Err            error
}

// Execute runs one batch for the given execution: loads the full
// context, walks the graph until the execution yields, completes, or
// fails, and persists every transition. Failures in loading surface on
// Result.Err and leave the row to lease-expiry recovery.
func (e *Executor) Execute(ctx context.Context, executionID string) Result {
	ctx, span := e.deps.Tracer.Start(ctx, tracing.SpanExecuteBatch,
		trace.WithAttributes(attribute.String(tracing.AttrExecutionID, executionID)))
	defer span.End()

	res := e.execute(ctx, span, executionID)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.SetAttributes(
		attribute.String(tracing.AttrBatchResult, string(res.Status)),
		attribute.Int(tracing.AttrBatchNodes, res.NodesProcessed),
	)
	return res
}

func (e *Executor) execute(ctx context.Context, span trace.Span, executionID string) Result {
	res := Result{ExecutionID: executionID}

	x, err := e.deps.Executions.Get(ctx, executionID)
	if err != nil {
		res.Err = fmt.Errorf("loading execution: %w", err)
		return res
	}
	if x.Status.IsTerminal() {
		// Replaying a finished execution is a no-op.
		res.Status = x.Status
		e.deps.Metrics.ObserveBatch(metrics.ResultNoop)
		return res
	}

	enr, err := e.deps.Enrollments.Get(ctx, x.EnrollmentID)
	if err != nil {
		res.Err = fmt.Errorf("loading enrollment: %w", err)
		return res
	}
	span.SetAttributes(
		attribute.String(tracing.AttrEnrollmentID, enr.ID),
		attribute.String(tracing.AttrWorkflowID, enr.WorkflowID),
		attribute.String(tracing.AttrContactID, enr.ContactID),
	)

	if enr.Status != enrollment.StatusActive {
		// The enrollment finished but its execution was left open,
		// usually by a crash between the two writes. Close the cursor
		// so claims stop finding it.
		if x.Status == enrollment.ExecProcessing {
			if terr := x.TransitionTo(enrollment.ExecCompleted); terr == nil {
				if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
					log.ErrorErr(log.CatEngine, "failed to close orphaned execution", uerr,
						"execution_id", x.ID)
				}
			}
		}
		res.Status = x.Status
		e.deps.Metrics.ObserveBatch(metrics.ResultNoop)
		return res
	}

	c, err := e.deps.Contacts.Get(ctx, enr.ContactID)
	if err != nil {
		res.Err = fmt.Errorf("loading contact: %w", err)
		return res
	}
	w, err := e.deps.Workflows.Get(ctx, enr.WorkflowID)
	if err != nil {
		res.Err = fmt.Errorf("loading workflow: %w", err)
		return res
	}

	if !w.Enabled {
		return e.failBatch(ctx, res, w, enr, x, failParams{
			message: "Workflow is disabled",
			code:    engine.CodeWorkflowDisabled,
		})
	}

	// Take up the batch: claimed rows arrive processing, direct calls
	// arrive waiting.
	if x.Status != enrollment.ExecProcessing {
		if terr := x.TransitionTo(enrollment.ExecProcessing); terr != nil {
			res.Err = terr
			return res
		}
	}
	now := e.now()
	x.LastRunAt = &now
	x.Attempts++
	if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
		res.Err = fmt.Errorf("starting batch: %w", uerr)
		return res
	}
	span.SetAttributes(attribute.Int(tracing.AttrBatchAttempt, x.Attempts))

	graph := workflow.NewGraph(w)
	pctx := &processor.Context{Workflow: w, Graph: graph, Enrollment: enr, Execution: x, Contact: c}

	// advances counts immediate advances only; it is the cycle guard.
	// invoked counts every processor call for the batch summary.
	advances := 0
	invoked := 0
	for {
		node, ok := graph.Node(x.CurrentNodeID)
		if !ok {
			res.NodesProcessed = invoked
			return e.failBatch(ctx, res, w, enr, x, failParams{
				message: "Current node not found",
				code:    engine.CodeNodeNotFound,
			})
		}
		proc, ok := e.deps.Registry.Get(node.Type)
		if !ok {
			res.NodesProcessed = invoked
			return e.failBatch(ctx, res, w, enr, x, failParams{
				message: fmt.Sprintf("No processor for node type %s", node.Type),
				code:    engine.CodeUnknownNodeType,
			})
		}

		stepStart := e.now()
		sr, stepErr := e.invoke(ctx, proc, node, pctx)
		stepDur := time.Since(stepStart)
		invoked++
		res.NodesProcessed = invoked
		e.deps.Metrics.ObserveStep(string(node.Type), stepDur)

		if stepErr != nil {
			e.appendLog(ctx, buildLog(x, enr, node,
				enrollment.ActionExecute, enrollment.LogFailed,
				nil, stepErr.Error(), stepDur))

			if engine.IsFatal(stepErr) {
				return e.failBatch(ctx, res, w, enr, x, failParams{
					message: stepErr.Error(),
					code:    engine.CodeOf(stepErr),
				})
			}

			if x.Attempts < x.MaxAttempts {
				// Retry at the same node; state does not advance.
				retryAt := e.now().Add(e.cfg.RetryDelay)
				if terr := x.TransitionTo(enrollment.ExecWaiting); terr != nil {
					res.Err = terr
					return res
				}
				x.NextRunAt = &retryAt
				x.ErrorMessage = stepErr.Error()
				if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
					res.Err = fmt.Errorf("scheduling retry: %w", uerr)
					return res
				}
				e.deps.Metrics.ObserveRetry()
				e.deps.Metrics.ObserveBatch(metrics.ResultWaiting)
				log.Warn(log.CatEngine, "execution retry scheduled",
					"execution_id", x.ID,
					"node_id", node.ID,
					"attempt", x.Attempts,
					"max_attempts", x.MaxAttempts,
					"error", stepErr.Error())
				res.Status = enrollment.ExecWaiting
				return res
			}

			return e.failBatch(ctx, res, w, enr, x, failParams{
				message:        stepErr.Error(),
				code:           engine.CodeAttemptsExhausted,
				failEnrollment: true,
			})
		}

		// The log row lands before any status transition becomes
		// observable.
		logStatus := enrollment.LogCompleted
		if sr.Err != "" {
			logStatus = enrollment.LogFailed
		}
		action := enrollment.ActionExecute
		if sr.StopEnrollment {
			action = enrollment.ActionStop
		}
		e.appendLog(ctx, buildLog(x, enr, node, action, logStatus, sr.OutputData, sr.Err, stepDur))

		if sr.StopEnrollment {
			if serr := enr.Stop(sr.StopReason); serr != nil {
				res.Err = serr
				return res
			}
			if uerr := e.deps.Enrollments.Update(ctx, enr); uerr != nil {
				res.Err = fmt.Errorf("stopping enrollment: %w", uerr)
				return res
			}
			if terr := x.TransitionTo(enrollment.ExecCompleted); terr != nil {
				res.Err = terr
				return res
			}
			x.ErrorMessage = ""
			if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
				res.Err = uerr
				return res
			}
			e.notifyStopped(ctx, w, enr)
			e.deps.Metrics.ObserveEnrollment("stopped")
			e.deps.Metrics.ObserveBatch(metrics.ResultCompleted)
			log.Info(log.CatEngine, "enrollment stopped",
				"enrollment_id", enr.ID,
				"workflow_id", w.ID,
				"reason", sr.StopReason)
			res.Status = enrollment.ExecCompleted
			return res
		}

		if sr.NextNodeID == nil {
			if terr := enr.TransitionTo(enrollment.StatusCompleted); terr != nil {
				res.Err = terr
				return res
			}
			if uerr := e.deps.Enrollments.Update(ctx, enr); uerr != nil {
				res.Err = fmt.Errorf("completing enrollment: %w", uerr)
				return res
			}
			if terr := x.TransitionTo(enrollment.ExecCompleted); terr != nil {
				res.Err = terr
				return res
			}
			x.MergeData(sr.ExecutionData)
			x.ErrorMessage = ""
			if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
				res.Err = uerr
				return res
			}
			e.deps.Metrics.ObserveEnrollment("completed")
			e.deps.Metrics.ObserveBatch(metrics.ResultCompleted)
			log.Info(log.CatEngine, "enrollment completed",
				"enrollment_id", enr.ID,
				"workflow_id", w.ID,
				"nodes", invoked)
			res.Status = enrollment.ExecCompleted
			return res
		}

		x.MergeData(sr.ExecutionData)

		if sr.NextRunAt != nil {
			// Persist and yield; the next due tick resumes from the
			// successor.
			x.CurrentNodeID = *sr.NextNodeID
			if terr := x.TransitionTo(enrollment.ExecWaiting); terr != nil {
				res.Err = terr
				return res
			}
			x.NextRunAt = sr.NextRunAt
			x.ErrorMessage = ""
			x.Attempts = 0
			if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
				res.Err = fmt.Errorf("yielding execution: %w", uerr)
				return res
			}
			e.deps.Metrics.ObserveBatch(metrics.ResultWaiting)
			log.Debug(log.CatEngine, "execution yielded",
				"execution_id", x.ID,
				"next_node_id", x.CurrentNodeID,
				"next_run_at", sr.NextRunAt.Format(time.RFC3339))
			res.Status = enrollment.ExecWaiting
			return res
		}

		// Immediate advance: persist the cursor, reload, loop.
		x.CurrentNodeID = *sr.NextNodeID
		x.ErrorMessage = ""
		if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
			res.Err = fmt.Errorf("advancing execution: %w", uerr)
			return res
		}
		x, err = e.deps.Executions.Get(ctx, executionID)
		if err != nil {
			res.Err = fmt.Errorf("reloading execution: %w", err)
			return res
		}
		pctx.Execution = x

		advances++
		if advances > e.cfg.NodesPerBatch {
			return e.failBatch(ctx, res, w, enr, x, failParams{
				message: "Too many nodes processed (possible infinite loop)",
				code:    engine.CodeCycleLimitExceeded,
			})
		}
	}
}

// invoke runs one processor with panic recovery and a per-node span. A
// recovered panic comes back as a retryable error.
func (e *Executor) invoke(ctx context.Context, proc processor.Processor, node *workflow.Node, pctx *processor.Context) (sr processor.StepResult, err error) {
	ctx, span := e.deps.Tracer.Start(ctx, tracing.SpanProcessNode,
		trace.WithAttributes(
			attribute.String(tracing.AttrNodeID, node.ID),
			attribute.String(tracing.AttrNodeType, string(node.Type)),
		))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatPanic, "processor panic recovered",
				"node_id", node.ID,
				"node_type", string(node.Type),
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("processor panic: %v", r)
			span.RecordError(err)
		}
	}()
	return proc.Execute(ctx, node, pctx)
}

type failParams struct {
	message        string
	code           engine.Code
	failEnrollment bool
}

// failBatch marks the execution failed and, for exhausted retries, the
// enrollment too. Structural failures leave the enrollment active for
// operator triage.
func (e *Executor) failBatch(ctx context.Context, res Result, w *workflow.Workflow, enr *enrollment.Enrollment, x *enrollment.Execution, p failParams) Result {
	x.ErrorMessage = p.message
	if x.Status != enrollment.ExecFailed {
		if terr := x.TransitionTo(enrollment.ExecFailed); terr != nil {
			res.Err = terr
			return res
		}
	}
	if uerr := e.deps.Executions.Update(ctx, x); uerr != nil {
		res.Err = fmt.Errorf("failing execution: %w", uerr)
		return res
	}

	if p.failEnrollment {
		if terr := enr.TransitionTo(enrollment.StatusFailed); terr != nil {
			log.ErrorErr(log.CatEngine, "failed to fail enrollment", terr,
				"enrollment_id", enr.ID)
		} else if uerr := e.deps.Enrollments.Update(ctx, enr); uerr != nil {
			log.ErrorErr(log.CatEngine, "failed to persist failed enrollment", uerr,
				"enrollment_id", enr.ID)
		}
		e.deps.Metrics.ObserveEnrollment("failed")
	}

	e.notifyFailed(ctx, w, enr, x, p)
	e.deps.Metrics.ObserveBatch(metrics.ResultFailed)
	log.Error(log.CatEngine, "execution failed",
		"execution_id", x.ID,
		"enrollment_id", enr.ID,
		"workflow_id", w.ID,
		"code", string(p.code),
		"error", p.message)

	res.Status = enrollment.ExecFailed
	return res
}

// appendLog writes one log row. Append failures are loud but do not
// abort the batch.
func (e *Executor) appendLog(ctx context.Context, l *enrollment.ExecutionLog) {
	if err := e.deps.Logs.Append(ctx, l); err != nil {
		log.ErrorErr(log.CatEngine, "failed to append execution log", err,
			"execution_id", l.ExecutionID,
			"node_id", l.NodeID)
	}
}

func buildLog(x *enrollment.Execution, enr *enrollment.Enrollment, node *workflow.Node, action enrollment.LogAction, status enrollment.LogStatus, output map[string]any, errMsg string, dur time.Duration) *enrollment.ExecutionLog {
	l := enrollment.NewLog(x.ID, enr.ID, node.ID, string(node.Type))
	l.Action = action
	l.Status = status
	l.Input = node.DataMap()
	l.Output = output
	l.Error = errMsg
	l.DurationMS = dur.Milliseconds()
	return l
}

func (e *Executor) notifyFailed(ctx context.Context, w *workflow.Workflow, enr *enrollment.Enrollment, x *enrollment.Execution, p failParams) {
	if e.deps.Notifications == nil {
		return
	}
	n := notification.New(notification.KindExecutionFailed,
		fmt.Sprintf("Execution failed in workflow %q", w.Name),
		fmt.Sprintf("%s: %s", p.code, p.message))
	n.WorkflowID = w.ID
	n.EnrollmentID = enr.ID
	n.ContactID = enr.ContactID
	if err := e.deps.Notifications.Create(ctx, n); err != nil {
		log.ErrorErr(log.CatEngine, "failed to create notification", err,
			"execution_id", x.ID)
	}
}

func (e *Executor) notifyStopped(ctx context.Context, w *workflow.Workflow, enr *enrollment.Enrollment) {
	if e.deps.Notifications == nil {
		return
	}
	n := notification.New(notification.KindEnrollmentStopped,
		fmt.Sprintf("Enrollment stopped in workflow %q", w.Name),
		enr.StopReason)
	n.WorkflowID = w.ID
	n.EnrollmentID = enr.ID
	n.ContactID = enr.ContactID
	if err := e.deps.Notifications.Create(ctx, n); err != nil {
		log.ErrorErr(log.CatEngine, "failed to create notification", err,
			"enrollment_id", enr.ID)
	}
}
