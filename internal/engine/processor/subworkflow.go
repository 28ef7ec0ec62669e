package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/workflow"
)

// CallSubWorkflow starts a child enrollment on the target workflow for
// the same contact. Both modes advance the parent immediately; sync
// mode records a pending result marker instead of blocking, so a child
// can never deadlock its parent. A contact already actively enrolled in
// the target stops this enrollment with reason circular_reference.
type CallSubWorkflow struct {
	Deps
}

func (*CallSubWorkflow) Type() workflow.NodeType { return workflow.NodeCallSubWorkflow }

func (p *CallSubWorkflow) Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.CallSubWorkflowPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}
	next := successor(pctx, node.ID, workflow.HandleDefault)

	target, err := p.Workflows.Get(ctx, payload.TargetWorkflowID)
	if err != nil {
		var nf *workflow.NotFoundError
		if errors.As(err, &nf) {
			return p.fail(payload, next, engine.Newf(engine.CodeWorkflowNotFound,
				"target workflow %s not found", payload.TargetWorkflowID))
		}
		return StepResult{}, fmt.Errorf("loading target workflow: %w", err)
	}

	if target.TriggerConfig().EffectiveType() != workflow.TriggerSubWorkflow {
		return p.fail(payload, next, engine.Newf(engine.CodeNoTriggerNode,
			"workflow %s has no sub_workflow trigger", target.ID))
	}
	if !target.Enabled {
		return p.fail(payload, next, engine.Newf(engine.CodeWorkflowDisabled,
			"target workflow %s is disabled", target.ID))
	}

	// A contact already active in the target means a call cycle;
	// stopping here is what keeps A calling B calling A from recursing
	// forever.
	_, activeErr := p.Enrollments.GetActive(ctx, target.ID, pctx.Contact.ID)
	if activeErr == nil {
		return StepResult{
			StopEnrollment: true,
			StopReason:     enrollment.StopReasonCircular,
			OutputData: map[string]any{
				"error":              string(engine.CodeCircularSubWorkflow),
				"target_workflow_id": target.ID,
			},
		}, nil
	}
	var nf *enrollment.NotFoundError
	if !errors.As(activeErr, &nf) {
		return StepResult{}, fmt.Errorf("checking target enrollment: %w", activeErr)
	}

	inputs := ResolveContactExprMap(payload.InputMappings, pctx.Contact)

	childID, err := p.Starter.StartSubWorkflow(ctx, target, pctx.Contact.ID, inputs)
	if err != nil {
		return p.fail(payload, next, fmt.Errorf("starting sub-workflow %s: %w", target.ID, err))
	}

	mode := payload.EffectiveMode()
	result := "started"
	if mode == workflow.ModeSync {
		// No synchronous join exists; the parent proceeds and the
		// child's return_to_parent logs its outputs.
		result = "pending"
	}

	call := map[string]any{
		"target_workflow_id":  target.ID,
		"child_enrollment_id": childID,
		"mode":                string(mode),
		"result":              result,
		"called_at":           time.Now().Format(time.RFC3339),
	}
	if len(inputs) > 0 {
		call["inputs"] = inputs
	}

	log.Info(log.CatEngine, "sub-workflow started",
		"parent_enrollment_id", pctx.Enrollment.ID,
		"child_enrollment_id", childID,
		"target_workflow_id", target.ID,
		"mode", string(mode))

	return StepResult{
		NextNodeID:    next,
		ExecutionData: map[string]any{KeySubWorkflowCalls: appendCall(pctx.Execution, call)},
		OutputData: map[string]any{
			"child_enrollment_id": childID,
			"target_workflow_id":  target.ID,
			"mode":                string(mode),
			"result":              result,
		},
	}, nil
}

// fail applies the node's failure policy: continue logs the error and
// advances, fail hands it to the engine's retry path.
func (p *CallSubWorkflow) fail(payload *workflow.CallSubWorkflowPayload, next *string, err error) (StepResult, error) {
	if payload.EffectiveOnFailure() == workflow.OnFailureContinue {
		return StepResult{
			NextNodeID: next,
			Err:        err.Error(),
		}, nil
	}
	return StepResult{}, err
}

// appendCall returns sub_workflow_calls with the new record appended,
// tolerating the []any shape the JSON column round-trips to.
func appendCall(x *enrollment.Execution, call map[string]any) []any {
	var calls []any
	if v, ok := x.ExecutionData[KeySubWorkflowCalls].([]any); ok {
		calls = append(calls, v...)
	}
	return append(calls, call)
}
