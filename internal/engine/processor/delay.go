package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/workflow"
)

// TimeDelay schedules the successor for later. Setting NextRunAt makes
// the executor persist and yield, so even a zero-duration delay costs
// one tick cycle.
type TimeDelay struct {
	// Now is swapped out by tests; defaults to time.Now.
	Now func() time.Time
}

func (*TimeDelay) Type() workflow.NodeType { return workflow.NodeTimeDelay }

func (d *TimeDelay) Execute(_ context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.DelayPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	runAt := now().Add(delayDuration(payload))

	return StepResult{
		NextNodeID: successor(pctx, node.ID, workflow.HandleDefault),
		NextRunAt:  &runAt,
		OutputData: map[string]any{
			"duration": payload.Duration,
			"unit":     string(payload.Unit),
			"until":    runAt.Format(time.RFC3339),
		},
	}, nil
}

func delayDuration(p *workflow.DelayPayload) time.Duration {
	switch p.Unit {
	case workflow.UnitMinutes:
		return time.Duration(p.Duration) * time.Minute
	case workflow.UnitHours:
		return time.Duration(p.Duration) * time.Hour
	case workflow.UnitDays:
		return time.Duration(p.Duration) * 24 * time.Hour
	}
	return 0
}
