// Package settings is the engine's key-value store: provider
// credentials and small durable markers such as the last-fired stamp of
// scheduled triggers. Values are strings; structured settings are
// stored as JSON under well-known keys.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Well-known keys.
const (
	// KeySMS holds the JSON-encoded SMSSettings.
	KeySMS = "sms_settings"
	// KeyEmail holds the JSON-encoded EmailSettings.
	KeyEmail = "email_settings"
	// scheduledLastFiredPrefix prefixes per-workflow scheduled-trigger
	// markers.
	scheduledLastFiredPrefix = "scheduled_trigger_last_fired:"
)

// ScheduledLastFiredKey returns the marker key for one workflow's
// scheduled trigger.
func ScheduledLastFiredKey(workflowID string) string {
	return scheduledLastFiredPrefix + workflowID
}

// NotFoundError indicates the key has no stored value.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("setting not found: %s", e.Key)
}

// Repository defines the interface for settings persistence.
type Repository interface {
	// Get returns the value for key. Returns *NotFoundError if the key
	// has no value.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// All returns every stored key and value.
	All(ctx context.Context) (map[string]string, error)
}

// SMSSettings is the credential set for the SMS provider.
type SMSSettings struct {
	AccountSID  string `json:"account_sid"`
	AuthToken   string `json:"auth_token"`
	PhoneNumber string `json:"phone_number"`
}

// IsConfigured reports whether every required credential is present.
func (s SMSSettings) IsConfigured() bool {
	return strings.TrimSpace(s.AccountSID) != "" &&
		strings.TrimSpace(s.AuthToken) != "" &&
		strings.TrimSpace(s.PhoneNumber) != ""
}

// EmailSettings is the credential set for the email provider.
type EmailSettings struct {
	APIKey    string `json:"api_key"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// IsConfigured reports whether the required credentials are present.
// FromName is optional.
func (s EmailSettings) IsConfigured() bool {
	return strings.TrimSpace(s.APIKey) != "" &&
		strings.TrimSpace(s.FromEmail) != ""
}

// Service layers typed accessors over the raw repository. Absent
// provider settings read back as the zero value, not an error; callers
// decide through IsConfigured.
type Service struct {
	repo Repository
}

// NewService creates a settings service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the raw value for key.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	return s.repo.Get(ctx, key)
}

// Set stores the raw value for key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, key, value)
}

// All returns every stored key and value.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	return s.repo.All(ctx)
}

// SMS returns the stored SMS settings, zero-valued when unset.
func (s *Service) SMS(ctx context.Context) (SMSSettings, error) {
	var out SMSSettings
	err := s.getJSON(ctx, KeySMS, &out)
	return out, err
}

// SetSMS stores the SMS settings.
func (s *Service) SetSMS(ctx context.Context, v SMSSettings) error {
	return s.setJSON(ctx, KeySMS, v)
}

// Email returns the stored email settings, zero-valued when unset.
func (s *Service) Email(ctx context.Context) (EmailSettings, error) {
	var out EmailSettings
	err := s.getJSON(ctx, KeyEmail, &out)
	return out, err
}

// SetEmail stores the email settings.
func (s *Service) SetEmail(ctx context.Context, v EmailSettings) error {
	return s.setJSON(ctx, KeyEmail, v)
}

func (s *Service) getJSON(ctx context.Context, key string, out any) error {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

func (s *Service) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	return s.repo.Set(ctx, key, string(raw))
}
