package processor

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/workflow"
)

// StopOnReply checks whether the contact has replied since enrollment,
// optionally on one channel only. A detected reply stops the enrollment
// with the reply channel in the reason; otherwise the node passes
// through to its successor, which for a typically-terminal node means
// completing.
type StopOnReply struct {
	Messages message.Repository
}

func (*StopOnReply) Type() workflow.NodeType { return workflow.NodeStopOnReply }

func (s *StopOnReply) Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.StopOnReplyPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}

	var filter message.Channel
	if ch := payload.EffectiveChannel(); ch != workflow.ReplyAny {
		filter = message.Channel(ch)
	}

	replied, channel, err := s.Messages.HasInboundSince(ctx, pctx.Contact.ID, pctx.Enrollment.EnrolledAt, filter)
	if err != nil {
		return StepResult{}, fmt.Errorf("querying inbound messages: %w", err)
	}

	if replied {
		return StepResult{
			StopEnrollment: true,
			StopReason:     enrollment.StopReasonReply(string(channel)),
			OutputData: map[string]any{
				"replied": true,
				"channel": string(channel),
			},
		}, nil
	}

	return StepResult{
		NextNodeID: successor(pctx, node.ID, workflow.HandleDefault),
		OutputData: map[string]any{"replied": false},
	}, nil
}
