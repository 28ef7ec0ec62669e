package processor

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/workflow"
)

// UpdateStatus mutates the contact's lifecycle status, the only contact
// mutation any processor performs. A storage failure here is fatal:
// retrying a half-observed status change is worse than stopping.
type UpdateStatus struct {
	Contacts contact.Repository
}

func (*UpdateStatus) Type() workflow.NodeType { return workflow.NodeUpdateStatus }

func (u *UpdateStatus) Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.UpdateStatusPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}

	previous := pctx.Contact.Status
	if previous != payload.Status {
		if err := u.Contacts.UpdateStatus(ctx, pctx.Contact.ID, payload.Status); err != nil {
			return StepResult{}, &engine.Error{
				Code:    engine.CodeContactUpdateFailed,
				Message: fmt.Sprintf("updating contact %s status: %v", pctx.Contact.ID, err),
				Fatal:   true,
				Err:     err,
			}
		}
		// Later nodes in this batch must see the new status.
		pctx.Contact.Status = payload.Status
	}

	return StepResult{
		NextNodeID: successor(pctx, node.ID, workflow.HandleDefault),
		OutputData: map[string]any{
			"previous_status": string(previous),
			"status":          string(payload.Status),
		},
	}, nil
}
