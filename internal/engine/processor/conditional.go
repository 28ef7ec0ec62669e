package processor

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/engine/evaluator"
	"github.com/zjrosen/followup/internal/workflow"
)

// ConditionalSplit evaluates the node's expression against the contact
// and follows the yes or no handle. A missing edge on the chosen handle
// completes the enrollment gracefully.
type ConditionalSplit struct{}

func (*ConditionalSplit) Type() workflow.NodeType { return workflow.NodeConditionalSplit }

func (*ConditionalSplit) Execute(_ context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.ConditionalPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}

	result := evaluator.Evaluate(payload.Expression, pctx.Contact)
	handle := workflow.HandleNo
	if result {
		handle = workflow.HandleYes
	}

	return StepResult{
		NextNodeID:    successor(pctx, node.ID, handle),
		ExecutionData: map[string]any{KeyLastConditionResult: result},
		OutputData: map[string]any{
			"result": result,
			"branch": handle,
		},
	}, nil
}
