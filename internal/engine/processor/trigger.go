package processor

import (
	"context"

	"github.com/zjrosen/followup/internal/workflow"
)

// TriggerStart is a pure pass-through: enrollment created the execution
// pointing here, and the first batch walks straight on to the successor.
type TriggerStart struct{}

func (*TriggerStart) Type() workflow.NodeType { return workflow.NodeTriggerStart }

func (*TriggerStart) Execute(_ context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	return StepResult{NextNodeID: successor(pctx, node.ID, workflow.HandleDefault)}, nil
}
