package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/settings"
)

type sendgridCapture struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject string `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func sendgridSettings() settings.EmailSettings {
	return settings.EmailSettings{
		APIKey:    "key-1",
		FromEmail: "team@example.com",
		FromName:  "The Team",
	}
}

func TestSendGrid_SendsJSONPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload sendgridCapture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Personalizations, 1)
		require.Len(t, payload.Personalizations[0].To, 1)
		assert.Equal(t, "ada@example.com", payload.Personalizations[0].To[0].Email)
		assert.Equal(t, "team@example.com", payload.From.Email, "empty request sender falls back to settings")
		assert.Equal(t, "The Team", payload.From.Name)
		assert.Equal(t, "Checking in", payload.Subject)
		require.Len(t, payload.Content, 1)
		assert.Equal(t, "text/plain", payload.Content[0].Type)
		assert.Equal(t, "Hi Ada", payload.Content[0].Value)

		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sg := &provider.SendGrid{BaseURL: server.URL}
	res, err := sg.SendEmail(context.Background(), sendgridSettings(), provider.EmailRequest{
		To:      "ada@example.com",
		Subject: "Checking in",
		Body:    "Hi Ada",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sg-1", res.MessageID)
}

func TestSendGrid_RequestSenderOverridesSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload sendgridCapture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "sales@example.com", payload.From.Email)
		assert.Equal(t, "Sales Desk", payload.From.Name)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sg := &provider.SendGrid{BaseURL: server.URL}
	_, err := sg.SendEmail(context.Background(), sendgridSettings(), provider.EmailRequest{
		To:        "ada@example.com",
		Subject:   "Checking in",
		Body:      "Hi Ada",
		FromEmail: "sales@example.com",
		FromName:  "Sales Desk",
	})

	require.NoError(t, err)
}

func TestSendGrid_RejectionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"does not contain a valid address"}]}`))
	}))
	defer server.Close()

	sg := &provider.SendGrid{BaseURL: server.URL}
	res, err := sg.SendEmail(context.Background(), sendgridSettings(), provider.EmailRequest{To: "nope", Subject: "x", Body: "x"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "does not contain a valid address", res.Error)
}

func TestSendGrid_RejectionWithoutBodyFallsBackToStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sg := &provider.SendGrid{BaseURL: server.URL}
	res, err := sg.SendEmail(context.Background(), sendgridSettings(), provider.EmailRequest{To: "ada@example.com", Subject: "x", Body: "x"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "status 401", res.Error)
}

func TestSendGrid_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sg := &provider.SendGrid{BaseURL: server.URL}
	_, err := sg.SendEmail(context.Background(), sendgridSettings(), provider.EmailRequest{To: "ada@example.com", Subject: "x", Body: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendgrid unavailable: status 500")
}
