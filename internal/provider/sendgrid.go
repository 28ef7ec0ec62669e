package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/settings"
)

const sendgridSendURL = "https://api.sendgrid.com/v3/mail/send"

// SendGrid sends email through the SendGrid v3 mail API.
type SendGrid struct {
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// Client defaults to a 30s-timeout client.
	Client *http.Client
}

type sendgridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridPayload struct {
	Personalizations []struct {
		To []sendgridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendgridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

type sendgridError struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *SendGrid) SendEmail(ctx context.Context, cfg settings.EmailSettings, req EmailRequest) (EmailResult, error) {
	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = sendgridSendURL
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	fromEmail := req.FromEmail
	if fromEmail == "" {
		fromEmail = cfg.FromEmail
	}
	fromName := req.FromName
	if fromName == "" {
		fromName = cfg.FromName
	}

	var payload sendgridPayload
	payload.Personalizations = make([]struct {
		To []sendgridAddress `json:"to"`
	}, 1)
	payload.Personalizations[0].To = []sendgridAddress{{Email: req.To}}
	payload.From = sendgridAddress{Email: fromEmail, Name: fromName}
	payload.Subject = req.Subject
	payload.Content = []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{{Type: "text/plain", Value: req.Body}}

	body, err := json.Marshal(payload)
	if err != nil {
		return EmailResult{}, fmt.Errorf("encoding sendgrid payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return EmailResult{}, fmt.Errorf("building sendgrid request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return EmailResult{}, fmt.Errorf("calling sendgrid: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return EmailResult{}, fmt.Errorf("sendgrid unavailable: status %d", resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var se sendgridError
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(raw, &se) == nil && len(se.Errors) > 0 {
			msg = se.Errors[0].Message
		}
		log.Warn(log.CatProvider, "sendgrid rejected message",
			"status", resp.StatusCode,
			"error", msg)
		return EmailResult{Success: false, Error: msg}, nil
	}

	id := resp.Header.Get("X-Message-Id")
	log.Debug(log.CatProvider, "sendgrid accepted message", "message_id", id)
	return EmailResult{Success: true, MessageID: id}, nil
}
