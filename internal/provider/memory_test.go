package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/settings"
)

func TestMemorySMS_RecordsSuccessfulSends(t *testing.T) {
	ctx := context.Background()
	mem := &provider.MemorySMS{}

	first, err := mem.SendSMS(ctx, settings.SMSSettings{}, provider.SMSRequest{To: "+15550100", Body: "hello"})
	require.NoError(t, err)
	second, err := mem.SendSMS(ctx, settings.SMSSettings{}, provider.SMSRequest{To: "+15550101", Body: "again"})
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.Equal(t, "mem-sms-1", first.SID)
	assert.Equal(t, "mem-sms-2", second.SID)

	sent := mem.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "+15550100", sent[0].To)
	assert.Equal(t, "again", sent[1].Body)
	assert.Equal(t, 2, mem.Calls())
}

func TestMemorySMS_ErrorIsNotRecordedAsSent(t *testing.T) {
	mem := &provider.MemorySMS{Err: errors.New("connection reset")}

	_, err := mem.SendSMS(context.Background(), settings.SMSSettings{}, provider.SMSRequest{To: "+15550100"})

	require.Error(t, err)
	assert.Empty(t, mem.Sent(), "failed attempts must not count as sent")
	assert.Equal(t, 1, mem.Calls(), "failed attempts are still recorded as calls")
}

func TestMemorySMS_RejectReturnsUnsuccessfulResult(t *testing.T) {
	mem := &provider.MemorySMS{Reject: "blocked number"}

	res, err := mem.SendSMS(context.Background(), settings.SMSSettings{}, provider.SMSRequest{To: "+15550100"})

	require.NoError(t, err, "a rejection is a result, not a transport error")
	assert.False(t, res.Success)
	assert.Equal(t, "blocked number", res.Error)
	assert.Equal(t, "rejected", res.ErrorCode)
	assert.Empty(t, mem.Sent())
	assert.Equal(t, 1, mem.Calls())
}

func TestMemoryEmail_RecordsSuccessfulSends(t *testing.T) {
	ctx := context.Background()
	mem := &provider.MemoryEmail{}

	res, err := mem.SendEmail(ctx, settings.EmailSettings{}, provider.EmailRequest{
		To:      "ada@example.com",
		Subject: "Checking in",
		Body:    "Hi Ada",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "mem-email-1", res.MessageID)
	sent := mem.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Checking in", sent[0].Subject)
}

func TestMemoryEmail_ErrAndRejectMirrorSMS(t *testing.T) {
	failing := &provider.MemoryEmail{Err: errors.New("dns failure")}
	_, err := failing.SendEmail(context.Background(), settings.EmailSettings{}, provider.EmailRequest{To: "ada@example.com"})
	require.Error(t, err)
	assert.Empty(t, failing.Sent())

	rejecting := &provider.MemoryEmail{Reject: "bounced address"}
	res, err := rejecting.SendEmail(context.Background(), settings.EmailSettings{}, provider.EmailRequest{To: "ada@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "bounced address", res.Error)
	assert.Empty(t, rejecting.Sent())
	assert.Len(t, rejecting.Calls(), 1)
}
