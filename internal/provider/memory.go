package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/followup/internal/settings"
)

// MemorySMS records sends in memory. Tests drive failure modes through
// Err (returned as the call error, retryable) and Reject (returned as
// an unsuccessful result).
type MemorySMS struct {
	mu     sync.Mutex
	sent   []SMSRequest
	count  int
	Err    error
	Reject string
}

// Sent returns a copy of every accepted request.
func (m *MemorySMS) Sent() []SMSRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// Calls returns how many times SendSMS was invoked, including failures.
func (m *MemorySMS) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *MemorySMS) SendSMS(_ context.Context, _ settings.SMSSettings, req SMSRequest) (SMSResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	if m.Err != nil {
		return SMSResult{}, m.Err
	}
	if m.Reject != "" {
		return SMSResult{Success: false, Error: m.Reject, ErrorCode: "rejected"}, nil
	}
	m.sent = append(m.sent, req)
	return SMSResult{Success: true, SID: fmt.Sprintf("mem-sms-%d", len(m.sent))}, nil
}

// MemoryEmail records sends in memory, mirroring MemorySMS.
type MemoryEmail struct {
	mu     sync.Mutex
	sent   []EmailRequest
	count  int
	Err    error
	Reject string
}

// Sent returns a copy of every accepted request.
func (m *MemoryEmail) Sent() []EmailRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// Calls returns how many times SendEmail was invoked, including
// failures.
func (m *MemoryEmail) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *MemoryEmail) SendEmail(_ context.Context, _ settings.EmailSettings, req EmailRequest) (EmailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	if m.Err != nil {
		return EmailResult{}, m.Err
	}
	if m.Reject != "" {
		return EmailResult{Success: false, Error: m.Reject}, nil
	}
	m.sent = append(m.sent, req)
	return EmailResult{Success: true, MessageID: fmt.Sprintf("mem-email-%d", len(m.sent))}, nil
}
