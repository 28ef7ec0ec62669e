package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/settings"
)

// ConsoleSMS logs sends instead of dispatching them. It is the default
// adapter when no real provider is selected, useful for dry runs.
type ConsoleSMS struct{}

func (ConsoleSMS) SendSMS(_ context.Context, _ settings.SMSSettings, req SMSRequest) (SMSResult, error) {
	sid := "console-" + uuid.New().String()
	log.Info(log.CatProvider, "console sms send",
		"to", req.To,
		"from", req.From,
		"body", req.Body,
		"sid", sid)
	return SMSResult{Success: true, SID: sid}, nil
}

// ConsoleEmail logs sends instead of dispatching them.
type ConsoleEmail struct{}

func (ConsoleEmail) SendEmail(_ context.Context, _ settings.EmailSettings, req EmailRequest) (EmailResult, error) {
	id := "console-" + uuid.New().String()
	log.Info(log.CatProvider, "console email send",
		"to", req.To,
		"subject", req.Subject,
		"message_id", id)
	return EmailResult{Success: true, MessageID: id}, nil
}
