package processor

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/workflow"
)

// ReturnToParent is the terminal node of sub-workflows. It resolves the
// configured output expressions against the contact and records them in
// the final log for the parent to read; the executor then completes the
// enrollment because there is no next node.
type ReturnToParent struct{}

func (*ReturnToParent) Type() workflow.NodeType { return workflow.NodeReturnToParent }

func (*ReturnToParent) Execute(_ context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.ReturnToParentPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}

	output := map[string]any{}
	if payload.Status != "" {
		output["status"] = payload.Status
	}
	for k, v := range ResolveContactExprMap(payload.Outputs, pctx.Contact) {
		output[k] = v
	}

	return StepResult{OutputData: output}, nil
}
