// Package provider holds the outbound delivery adapters. An adapter
// call distinguishes two failure shapes: a returned error means the
// attempt never conclusively reached the provider (network trouble,
// provider outage) and may be retried; an unsuccessful result means the
// provider rejected the message and retrying the same payload will not
// help.
package provider

import (
	"context"

	"github.com/zjrosen/followup/internal/settings"
)

// SMSRequest is one outbound text message.
type SMSRequest struct {
	To   string
	Body string
	// From overrides the configured sender number when set.
	From string
}

// SMSResult is the provider's answer to an SMS send.
type SMSResult struct {
	Success   bool
	SID       string
	Error     string
	ErrorCode string
}

// SMSProvider sends text messages.
type SMSProvider interface {
	SendSMS(ctx context.Context, cfg settings.SMSSettings, req SMSRequest) (SMSResult, error)
}

// EmailRequest is one outbound email.
type EmailRequest struct {
	To      string
	Subject string
	Body    string
	// FromEmail and FromName override the configured sender when set.
	FromEmail string
	FromName  string
}

// EmailResult is the provider's answer to an email send.
type EmailResult struct {
	Success   bool
	MessageID string
	Error     string
}

// EmailProvider sends email.
type EmailProvider interface {
	SendEmail(ctx context.Context, cfg settings.EmailSettings, req EmailRequest) (EmailResult, error)
}
