package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/config"
	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/testutil"
	"github.com/zjrosen/followup/internal/tracing"
)

func TestBuildProviders(t *testing.T) {
	t.Run("defaults to console", func(t *testing.T) {
		sms, email, err := buildProviders(config.ProvidersConfig{})
		require.NoError(t, err)
		require.IsType(t, provider.ConsoleSMS{}, sms, "empty sms selection should use console")
		require.IsType(t, provider.ConsoleEmail{}, email, "empty email selection should use console")
	})

	t.Run("memory", func(t *testing.T) {
		sms, email, err := buildProviders(config.ProvidersConfig{SMS: "memory", Email: "memory"})
		require.NoError(t, err)
		require.IsType(t, &provider.MemorySMS{}, sms)
		require.IsType(t, &provider.MemoryEmail{}, email)
	})

	t.Run("live adapters", func(t *testing.T) {
		sms, email, err := buildProviders(config.ProvidersConfig{SMS: "twilio", Email: "sendgrid"})
		require.NoError(t, err)
		require.IsType(t, &provider.Twilio{}, sms)
		require.IsType(t, &provider.SendGrid{}, email)
	})

	t.Run("unknown sms", func(t *testing.T) {
		_, _, err := buildProviders(config.ProvidersConfig{SMS: "carrier-pigeon"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := buildProviders(config.ProvidersConfig{Email: "fax"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "fax")
	})
}

func TestBuildEngine_TickOnEmptyStore(t *testing.T) {
	prev := cfg
	cfg = config.Defaults()
	t.Cleanup(func() { cfg = prev })

	db := testutil.NewTestDB(t)
	contacts := contact.NewService(db.Contacts(), db.ContactEvents())
	t.Cleanup(contacts.Close)

	traces, err := tracing.NewProvider(tracing.Config{Enabled: false})
	require.NoError(t, err)

	sched, err := buildEngine(db, contacts, metrics.New(), traces.Tracer())
	require.NoError(t, err)

	stats := sched.Tick(context.Background())
	require.Zero(t, stats.Due, "empty store should have no due executions")
	require.Zero(t, stats.Claimed)
	require.Zero(t, stats.Failed)
}

func TestWorkflowValidateCommand(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
name: welcome
nodes:
  - id: start
    type: trigger_start
    data:
      trigger:
        type: manual
  - id: send
    type: send_sms
    data:
      template_id: tpl-1
edges:
  - source: start
    target: send
`), 0o600))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
name: broken
nodes:
  - id: send
    type: send_sms
    data:
      template_id: tpl-1
`), 0o600))

	prev := workflowValidateFile
	t.Cleanup(func() { workflowValidateFile = prev })

	workflowValidateFile = valid
	require.NoError(t, runWorkflowValidate(nil, nil), "well-formed definition should validate")

	workflowValidateFile = invalid
	err := runWorkflowValidate(nil, nil)
	require.Error(t, err, "triggerless definition should fail validation")
	require.Contains(t, err.Error(), "trigger")
}

func TestMask(t *testing.T) {
	require.Equal(t, "****", mask("abcd"))
	require.Equal(t, "******7890", mask("1234567890"))
	require.Equal(t, "", mask(""))
}
