package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/engine"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/workflow"
)

// SendEmail mirrors SendSMS for the email channel. Unlike SMS, both the
// rendered subject and body must be non-empty; a subject override in
// the node payload is itself rendered before use.
type SendEmail struct {
	Deps
}

func (*SendEmail) Type() workflow.NodeType { return workflow.NodeSendEmail }

func (p *SendEmail) Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error) {
	payload, ok := node.Data.(*workflow.SendEmailPayload)
	if !ok {
		return StepResult{}, fmt.Errorf("node %s: unexpected payload %T", node.ID, node.Data)
	}
	next := successor(pctx, node.ID, workflow.HandleDefault)

	if pctx.Contact.DoNotContact {
		return skipResult(next, "do_not_contact"), nil
	}
	if strings.TrimSpace(pctx.Contact.Email) == "" {
		return skipResult(next, "no_email"), nil
	}

	cfg, err := p.Settings.Email(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("loading email settings: %w", err)
	}
	if !cfg.IsConfigured() {
		return StepResult{}, engine.Newf(engine.CodeProviderNotConfigured, "email provider is not configured")
	}

	tmpl, err := p.Templates.Get(ctx, payload.TemplateID)
	if err != nil {
		var nf *message.TemplateNotFoundError
		if errors.As(err, &nf) {
			return StepResult{}, engine.Newf(engine.CodeTemplateNotFound, "template %s not found", payload.TemplateID)
		}
		return StepResult{}, fmt.Errorf("loading template %s: %w", payload.TemplateID, err)
	}

	rawSubject := tmpl.Subject
	if payload.SubjectOverride != "" {
		rawSubject = payload.SubjectOverride
	}
	subject := message.Render(rawSubject, pctx.Contact)
	body := message.Render(tmpl.Body, pctx.Contact)

	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		missing := "subject"
		if strings.TrimSpace(subject) != "" {
			missing = "body"
		}
		return StepResult{
			NextNodeID: next,
			Err:        fmt.Sprintf("rendered email %s is empty", missing),
			OutputData: map[string]any{"template_id": payload.TemplateID},
		}, nil
	}

	m := message.NewOutbound(pctx.Contact.ID, message.ChannelEmail, body)
	m.Subject = subject
	m.Source = message.SourceWorkflow
	m.TemplateID = payload.TemplateID
	m.ExecutionID = pctx.Execution.ID
	if err := p.Messages.Create(ctx, m); err != nil {
		return StepResult{}, fmt.Errorf("persisting queued message: %w", err)
	}

	req := provider.EmailRequest{
		To:        pctx.Contact.Email,
		Subject:   subject,
		Body:      body,
		FromEmail: payload.FromEmail,
	}
	res, err := p.Email.SendEmail(ctx, cfg, req)
	if err != nil {
		res, err = p.Email.SendEmail(ctx, cfg, req)
	}
	if err != nil {
		p.markFailed(ctx, m.ID, err.Error())
		p.Metrics.ObserveMessage(string(message.ChannelEmail), string(message.StatusFailed))
		return StepResult{}, fmt.Errorf("sending email: %w", err)
	}
	if !res.Success {
		p.markFailed(ctx, m.ID, res.Error)
		p.Metrics.ObserveMessage(string(message.ChannelEmail), string(message.StatusFailed))
		return StepResult{
			NextNodeID: next,
			Err:        fmt.Sprintf("email send failed: %s", res.Error),
			OutputData: map[string]any{
				"message_id": m.ID,
				"error":      res.Error,
			},
		}, nil
	}

	now := time.Now()
	if err := p.Messages.MarkSent(ctx, m.ID, res.MessageID, now); err != nil {
		return StepResult{}, fmt.Errorf("marking message sent: %w", err)
	}
	p.Metrics.ObserveMessage(string(message.ChannelEmail), string(message.StatusSent))
	pctx.Contact.LastContactedAt = &now

	log.Debug(log.CatProvider, "email sent",
		"contact_id", pctx.Contact.ID,
		"message_id", m.ID,
		"provider_id", res.MessageID)

	return StepResult{
		NextNodeID:    next,
		ExecutionData: map[string]any{KeySentMessageIDs: appendMessageID(pctx.Execution, m.ID)},
		OutputData: map[string]any{
			"message_id":  m.ID,
			"provider_id": res.MessageID,
			"to":          pctx.Contact.Email,
			"subject":     subject,
		},
	}, nil
}

func (p *SendEmail) markFailed(ctx context.Context, id, reason string) {
	if err := p.Messages.MarkFailed(ctx, id, reason); err != nil {
		log.ErrorErr(log.CatProvider, "failed to record message failure", err, "message_id", id)
	}
}
