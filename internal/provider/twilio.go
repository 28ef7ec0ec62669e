package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/settings"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// Client defaults to a 30s-timeout client.
	Client *http.Client
}

type twilioResponse struct {
	SID       string `json:"sid"`
	ErrorCode any    `json:"code"`
	Message   string `json:"message"`
}

func (t *Twilio) SendSMS(ctx context.Context, cfg settings.SMSSettings, req SMSRequest) (SMSResult, error) {
	base := t.BaseURL
	if base == "" {
		base = twilioBaseURL
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	from := req.From
	if from == "" {
		from = cfg.PhoneNumber
	}
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", from)
	form.Set("Body", req.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", base, url.PathEscape(cfg.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SMSResult{}, fmt.Errorf("building twilio request: %w", err)
	}
	httpReq.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(httpReq)
	if err != nil {
		return SMSResult{}, fmt.Errorf("calling twilio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SMSResult{}, fmt.Errorf("reading twilio response: %w", err)
	}

	// 5xx means the provider itself is struggling; let the engine retry.
	if resp.StatusCode >= 500 {
		return SMSResult{}, fmt.Errorf("twilio unavailable: status %d", resp.StatusCode)
	}

	var tr twilioResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return SMSResult{}, fmt.Errorf("decoding twilio response: %w", err)
	}

	if resp.StatusCode >= 400 {
		log.Warn(log.CatProvider, "twilio rejected message",
			"status", resp.StatusCode,
			"error", tr.Message)
		return SMSResult{
			Success:   false,
			Error:     tr.Message,
			ErrorCode: fmt.Sprintf("%v", tr.ErrorCode),
		}, nil
	}

	log.Debug(log.CatProvider, "twilio accepted message", "sid", tr.SID)
	return SMSResult{Success: true, SID: tr.SID}, nil
}
