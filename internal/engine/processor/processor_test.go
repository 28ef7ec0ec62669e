package processor_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/engine/processor"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/infrastructure/sqlite"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/testutil"
	"github.com/zjrosen/followup/internal/workflow"
)

// fixture wires processor dependencies against an in-memory store with
// recording providers.
type fixture struct {
	db       *sqlite.DB
	settings *settings.Service
	sms      *provider.MemorySMS
	email    *provider.MemoryEmail
	metrics  *metrics.Metrics
	deps     processor.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := &fixture{
		db:       db,
		settings: settings.NewService(db.Settings()),
		sms:      &provider.MemorySMS{},
		email:    &provider.MemoryEmail{},
		metrics:  metrics.New(),
	}
	f.deps = processor.Deps{
		Contacts:    db.Contacts(),
		Workflows:   db.Workflows(),
		Enrollments: db.Enrollments(),
		Messages:    db.Messages(),
		Templates:   processor.NewCachedTemplates(db.Templates()),
		Settings:    processor.NewCachedSettings(f.settings),
		SMS:         f.sms,
		Email:       f.email,
		Metrics:     f.metrics,
	}
	return f
}

// expectMessageCount asserts the outbound-message counter holds exactly
// one sample with the given channel, result, and value.
func (f *fixture) expectMessageCount(t *testing.T, channel, result string, n int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP followup_messages_total Outbound messages by channel and result.
# TYPE followup_messages_total counter
followup_messages_total{channel=%q,result=%q} %d
`, channel, result, n)
	require.NoError(t, promtest.GatherAndCompare(f.metrics.Registry(),
		strings.NewReader(expected), "followup_messages_total"))
}

func (f *fixture) configureProviders(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.settings.SetSMS(ctx, settings.SMSSettings{
		AccountSID:  "AC-test",
		AuthToken:   "token",
		PhoneNumber: "+15550000",
	}))
	require.NoError(t, f.settings.SetEmail(ctx, settings.EmailSettings{
		APIKey:    "SG.test",
		FromEmail: "team@example.com",
		FromName:  "Team",
	}))
}

// stepContext builds the loaded context a processor sees, with the
// execution cursor parked on the trigger node.
func stepContext(w *workflow.Workflow, c *contact.Contact) *processor.Context {
	enr := enrollment.New(w.ID, c.ID)
	x := enrollment.NewExecution(enr.ID, w.TriggerStart().ID, time.Now(), enrollment.DefaultMaxAttempts)
	return &processor.Context{
		Workflow:   w,
		Graph:      workflow.NewGraph(w),
		Enrollment: enr,
		Execution:  x,
		Contact:    c,
	}
}

type staticProc struct {
	typ workflow.NodeType
}

func (p *staticProc) Type() workflow.NodeType { return p.typ }

func (p *staticProc) Execute(context.Context, *workflow.Node, *processor.Context) (processor.StepResult, error) {
	return processor.StepResult{}, nil
}

func TestDefaultRegistry_CoversEveryNodeType(t *testing.T) {
	r := processor.DefaultRegistry(processor.Deps{})

	for _, typ := range workflow.NodeTypes() {
		p, ok := r.Get(typ)
		require.True(t, ok, "no processor registered for %s", typ)
		assert.Equal(t, typ, p.Type())
	}
	assert.ElementsMatch(t, workflow.NodeTypes(), r.Types())
}

func TestRegistry_GetMissAndReplace(t *testing.T) {
	r := processor.NewRegistry()

	_, ok := r.Get(workflow.NodeSendSMS)
	assert.False(t, ok, "empty registry has no processors")

	r.Register(&processor.TriggerStart{})
	replacement := &staticProc{typ: workflow.NodeTriggerStart}
	r.Register(replacement)

	got, ok := r.Get(workflow.NodeTriggerStart)
	require.True(t, ok)
	assert.Same(t, replacement, got, "later registration replaces the earlier one")
	assert.Len(t, r.Types(), 1)
}
