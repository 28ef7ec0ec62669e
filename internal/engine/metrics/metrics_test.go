package metrics

import (
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.ObserveTick(time.Second, 3)
	m.SetDueBacklog(10)
	m.ObserveBatch(ResultCompleted)
	m.ObserveStep("send_sms", time.Millisecond)
	m.ObserveRetry()
	m.ObserveEnrollment("created")
	m.ObserveMessage("sms", "sent")

	assert.Nil(t, m.Registry())
}

func TestMetrics_CountersAccumulate(t *testing.T) {
	m := New()

	m.ObserveTick(120*time.Millisecond, 3)
	m.ObserveTick(80*time.Millisecond, 0)
	m.SetDueBacklog(7)
	m.ObserveBatch(ResultCompleted)
	m.ObserveBatch(ResultCompleted)
	m.ObserveBatch(ResultFailed)
	m.ObserveStep("send_sms", 5*time.Millisecond)
	m.ObserveRetry()
	m.ObserveEnrollment("created")
	m.ObserveMessage("sms", "sent")

	assert.Equal(t, float64(2), promtest.ToFloat64(m.ticks))
	assert.Equal(t, float64(7), promtest.ToFloat64(m.dueBacklog))
	assert.Equal(t, float64(2), promtest.ToFloat64(m.batches.WithLabelValues(ResultCompleted)))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.batches.WithLabelValues(ResultFailed)))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.nodesProcessed.WithLabelValues("send_sms")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.retriesScheduled))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.enrollments.WithLabelValues("created")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.messages.WithLabelValues("sms", "sent")))
}

func TestMetrics_RegistryExportsFamilies(t *testing.T) {
	m := New()
	m.ObserveTick(time.Millisecond, 1)
	m.ObserveBatch(ResultWaiting)
	m.ObserveStep("time_delay", time.Millisecond)
	m.SetDueBacklog(1)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"followup_ticks_total",
		"followup_tick_duration_seconds",
		"followup_claimed_per_tick",
		"followup_due_backlog",
		"followup_batches_total",
		"followup_step_duration_seconds",
	} {
		assert.True(t, names[want], "registry should export %s", want)
	}
}
