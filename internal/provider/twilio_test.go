package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/settings"
)

func twilioSettings() settings.SMSSettings {
	return settings.SMSSettings{
		AccountSID:  "AC123",
		AuthToken:   "token-1",
		PhoneNumber: "+15550100",
	}
}

func TestTwilio_SendsFormEncodedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token-1", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550199", r.PostFormValue("To"))
		assert.Equal(t, "+15550100", r.PostFormValue("From"), "empty request From falls back to the configured number")
		assert.Equal(t, "Hi Ada", r.PostFormValue("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer server.Close()

	tw := &provider.Twilio{BaseURL: server.URL}
	res, err := tw.SendSMS(context.Background(), twilioSettings(), provider.SMSRequest{
		To:   "+15550199",
		Body: "Hi Ada",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "SM123", res.SID)
}

func TestTwilio_RequestFromOverridesSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550999", r.PostFormValue("From"))
		_, _ = w.Write([]byte(`{"sid":"SM124"}`))
	}))
	defer server.Close()

	tw := &provider.Twilio{BaseURL: server.URL}
	res, err := tw.SendSMS(context.Background(), twilioSettings(), provider.SMSRequest{
		To:   "+15550199",
		From: "+15550999",
		Body: "Hi Ada",
	})

	require.NoError(t, err)
	assert.Equal(t, "SM124", res.SID)
}

func TestTwilio_RejectionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid 'To' number"}`))
	}))
	defer server.Close()

	tw := &provider.Twilio{BaseURL: server.URL}
	res, err := tw.SendSMS(context.Background(), twilioSettings(), provider.SMSRequest{To: "not-a-number", Body: "x"})

	require.NoError(t, err, "a 4xx rejection is a result, not a transport error")
	assert.False(t, res.Success)
	assert.Equal(t, "invalid 'To' number", res.Error)
	assert.Equal(t, "21211", res.ErrorCode)
}

func TestTwilio_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tw := &provider.Twilio{BaseURL: server.URL}
	_, err := tw.SendSMS(context.Background(), twilioSettings(), provider.SMSRequest{To: "+15550199", Body: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "twilio unavailable: status 503")
}

func TestTwilio_MalformedResponseIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	tw := &provider.Twilio{BaseURL: server.URL}
	_, err := tw.SendSMS(context.Background(), twilioSettings(), provider.SMSRequest{To: "+15550199", Body: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding twilio response")
}
