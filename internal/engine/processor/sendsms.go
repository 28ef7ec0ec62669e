package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/workflow"
)

// SendSMS renders the template and dispatches through the SMS adapter.
// A contact without a phone number or flagged do-not-contact is skipped
// without error. Missing provider settings and missing templates are
// retryable failures; a provider rejection is recorded on the message
// and on the step, and the walk advances anyway.
type SendSMS struct {
	Deps
}

func (*SendSMS) Type() workflow.NodeType { return workflow.NodeSendSMS }

func (p *SendSMS) Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.SendSMSPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}
	next := successor(pctx, node.ID, workflow.HandleDefault)

	if pctx.Contact.DoNotContact {
		return skipResult(next, "do_not_contact"), nil
	}
	if strings.TrimSpace(pctx.Contact.Phone) == "" {
		return skipResult(next, "no_phone"), nil
	}

	cfg, err := p.Settings.SMS(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("loading sms settings: %w", err)
	}
	if !cfg.IsConfigured() {
		return StepResult{}, engine.Newf(engine.CodeProviderNotConfigured, "SMS provider is not configured")
	}

	tmpl, err := p.Templates.Get(ctx, payload.TemplateID)
	if err != nil {
		var nf *message.TemplateNotFoundError
		if errors.As(err, &nf) {
			return StepResult{}, engine.Newf(engine.CodeTemplateNotFound, "template %s not found", payload.TemplateID)
		}
		return StepResult{}, fmt.Errorf("loading template %s: %w", payload.TemplateID, err)
	}

	body := message.Render(tmpl.Body, pctx.Contact)
	if strings.TrimSpace(body) == "" {
		return StepResult{
			NextNodeID: next,
			Err:        "rendered sms body is empty",
			OutputData: map[string]any{"template_id": payload.TemplateID},
		}, nil
	}

	m := message.NewOutbound(pctx.Contact.ID, message.ChannelSMS, body)
	m.Source = message.SourceWorkflow
	m.TemplateID = payload.TemplateID
	m.ExecutionID = pctx.Execution.ID
	if err := p.Messages.Create(ctx, m); err != nil {
		return StepResult{}, fmt.Errorf("persisting queued message: %w", err)
	}

	req := provider.SMSRequest{To: pctx.Contact.Phone, Body: body, From: payload.FromNumber}
	res, err := p.SMS.SendSMS(ctx, cfg, req)
	if err != nil {
		// One immediate retry on transport trouble before handing the
		// failure to the engine's retry path.
		res, err = p.SMS.SendSMS(ctx, cfg, req)
	}
	if err != nil {
		p.markFailed(ctx, m.ID, err.Error())
		p.Metrics.ObserveMessage(string(message.ChannelSMS), string(message.StatusFailed))
		return StepResult{}, fmt.Errorf("sending sms: %w", err)
	}
	if !res.Success {
		p.markFailed(ctx, m.ID, res.Error)
		p.Metrics.ObserveMessage(string(message.ChannelSMS), string(message.StatusFailed))
		return StepResult{
			NextNodeID: next,
			Err:        fmt.Sprintf("sms send failed: %s", res.Error),
			OutputData: map[string]any{
				"message_id": m.ID,
				"error":      res.Error,
				"error_code": res.ErrorCode,
			},
		}, nil
	}

	now := time.Now()
	if err := p.Messages.MarkSent(ctx, m.ID, res.SID, now); err != nil {
		return StepResult{}, fmt.Errorf("marking message sent: %w", err)
	}
	p.Metrics.ObserveMessage(string(message.ChannelSMS), string(message.StatusSent))
	pctx.Contact.LastContactedAt = &now

	log.Debug(log.CatProvider, "sms sent",
		"contact_id", pctx.Contact.ID,
		"message_id", m.ID,
		"provider_id", res.SID)

	return StepResult{
		NextNodeID:    next,
		ExecutionData: map[string]any{KeySentMessageIDs: appendMessageID(pctx.Execution, m.ID)},
		OutputData: map[string]any{
			"message_id":  m.ID,
			"provider_id": res.SID,
			"to":          pctx.Contact.Phone,
		},
	}, nil
}

func (p *SendSMS) markFailed(ctx context.Context, id, reason string) {
	if err := p.Messages.MarkFailed(ctx, id, reason); err != nil {
		log.ErrorErr(log.CatProvider, "failed to record message failure", err, "message_id", id)
	}
}

func skipResult(next *string, reason string) StepResult {
	return StepResult{
		NextNodeID: next,
		OutputData: map[string]any{"skipped": true, "reason": reason},
	}
}

// appendMessageID returns sent_message_ids with id appended, tolerating
// the []any shape the JSON column round-trips to.
func appendMessageID(x *enrollment.Execution, id string) []any {
	var ids []any
	switch v := x.ExecutionData[KeySentMessageIDs].(type) {
	case []any:
		ids = append(ids, v...)
	case []string:
		for _, s := range v {
			ids = append(ids, s)
		}
	}
	return append(ids, id)
}
