package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/tracing"
	"github.com/zjrosen/followup/internal/workflow"
)

// EnrollOptions steer one enrollment.
type EnrollOptions struct {
	// ViaSubWorkflow permits enrolling into workflows whose trigger type
	// is sub_workflow. Only call_sub_workflow sets it.
	ViaSubWorkflow bool
	// Data seeds the new execution's data map, such as resolved
	// sub-workflow inputs.
	Data map[string]any
}

// EnrollerDeps carries the Enroller's collaborators.
type EnrollerDeps struct {
	Workflows   workflow.Repository
	Enrollments enrollment.Repository
	Executions  enrollment.ExecutionRepository
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// Enroller is the single primitive every trigger source funnels
// through: manual commands, event fan-out, scheduled triggers, and
// call_sub_workflow nodes all end up here.
type Enroller struct {
	deps        EnrollerDeps
	maxAttempts int
	now         func() time.Time
}

// NewEnroller creates an enroller. maxAttempts seeds each new
// execution's retry budget.
func NewEnroller(deps EnrollerDeps, maxAttempts int) *Enroller {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("enroller")
	}
	if maxAttempts <= 0 {
		maxAttempts = enrollment.DefaultMaxAttempts
	}
	return &Enroller{deps: deps, maxAttempts: maxAttempts, now: time.Now}
}

// Enroll binds the contact to the workflow: verifies it is enabled and
// has a trigger node, then inserts an active enrollment plus a waiting
// execution at the trigger node, due immediately. A contact already
// actively enrolled is skipped; created reports whether a new
// enrollment was made.
func (e *Enroller) Enroll(ctx context.Context, workflowID, contactID string, opts EnrollOptions) (enr *enrollment.Enrollment, created bool, err error) {
	ctx, span := e.deps.Tracer.Start(ctx, tracing.SpanEnroll,
		trace.WithAttributes(
			attribute.String(tracing.AttrWorkflowID, workflowID),
			attribute.String(tracing.AttrContactID, contactID),
		))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	existing, gerr := e.deps.Enrollments.GetActive(ctx, workflowID, contactID)
	if gerr == nil {
		return existing, false, nil
	}
	var nf *enrollment.NotFoundError
	if !errors.As(gerr, &nf) {
		return nil, false, fmt.Errorf("checking active enrollment: %w", gerr)
	}

	w, err := e.deps.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, false, err
	}
	if !w.Enabled {
		return nil, false, engine.Newf(engine.CodeWorkflowDisabled, "Workflow is disabled")
	}
	trigger := w.TriggerStart()
	if trigger == nil {
		return nil, false, engine.Newf(engine.CodeNoTriggerNode, "Workflow has no trigger node")
	}
	if w.TriggerConfig().EffectiveType() == workflow.TriggerSubWorkflow && !opts.ViaSubWorkflow {
		return nil, false, engine.Newf(engine.CodeNoTriggerNode,
			"workflow %s is only startable by call_sub_workflow", workflowID)
	}

	enr = enrollment.New(workflowID, contactID)
	if cerr := e.deps.Enrollments.Create(ctx, enr); cerr != nil {
		var dup *enrollment.DuplicateActiveError
		if errors.As(cerr, &dup) {
			// Lost a race with another trigger source; same skip as
			// above.
			if existing, gerr := e.deps.Enrollments.GetActive(ctx, workflowID, contactID); gerr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("creating enrollment: %w", cerr)
	}

	x := enrollment.NewExecution(enr.ID, trigger.ID, e.now(), e.maxAttempts)
	x.MergeData(opts.Data)
	if cerr := e.deps.Executions.Create(ctx, x); cerr != nil {
		return nil, false, fmt.Errorf("creating execution: %w", cerr)
	}

	e.deps.Metrics.ObserveEnrollment("created")
	log.Info(log.CatTrigger, "contact enrolled",
		"workflow_id", workflowID,
		"contact_id", contactID,
		"enrollment_id", enr.ID)
	return enr, true, nil
}

// StartSubWorkflow implements processor.SubWorkflowStarter. The calling
// processor already vetted the target's trigger type, enablement, and
// circularity; by the time this runs a duplicate can only mean a lost
// race, which gets the same circular-reference refusal.
func (e *Enroller) StartSubWorkflow(ctx context.Context, target *workflow.Workflow, contactID string, inputs map[string]string) (string, error) {
	var data map[string]any
	if len(inputs) > 0 {
		data = map[string]any{"inputs": inputs}
	}
	enr, created, err := e.Enroll(ctx, target.ID, contactID, EnrollOptions{
		ViaSubWorkflow: true,
		Data:           data,
	})
	if err != nil {
		return "", err
	}
	if !created {
		return "", engine.Newf(engine.CodeCircularSubWorkflow,
			"contact %s is already enrolled in workflow %s", contactID, target.ID)
	}
	return enr.ID, nil
}
