package tracing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be opt-in")
	require.Equal(t, "file", cfg.Exporter)
	require.Empty(t, cfg.FilePath)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "followup-engine", cfg.ServiceName)
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, provider, "disabled config still yields a usable provider")
	require.False(t, provider.Enabled())

	tracer := provider.Tracer()
	require.NotNil(t, tracer)

	// No-op spans carry no identity and record nothing.
	_, span := tracer.Start(context.Background(), SpanTick)
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpans(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    "file",
		FilePath:    tracePath,
		SampleRate:  1.0,
		ServiceName: "followup-test",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), SpanExecuteBatch,
		trace.WithAttributes(
			attribute.String(AttrWorkflowID, "wf-1"),
			attribute.String(AttrEnrollmentID, "enr-1"),
		),
	)
	require.True(t, span.SpanContext().IsValid(), "sampled span should carry real IDs")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()), "shutdown flushes the batch processor")

	file, err := os.Open(tracePath)
	require.NoError(t, err)
	defer file.Close()

	var record SpanRecord
	require.NoError(t, json.NewDecoder(file).Decode(&record))
	require.Equal(t, SpanExecuteBatch, record.Name)
	require.Equal(t, "wf-1", record.Attributes[AttrWorkflowID])
	require.Equal(t, "enr-1", record.Attributes[AttrEnrollmentID])
}

func TestNewProvider_FileExporterRequiresPath(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "file_path required")
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "unsupported exporter")
}

func TestNewProvider_NoneExporterStillCorrelates(t *testing.T) {
	provider, err := NewProvider(Config{
		Enabled:    true,
		Exporter:   "none",
		SampleRate: 1.0,
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	// Nothing is exported, but spans still get real IDs for log correlation.
	_, span := provider.Tracer().Start(context.Background(), SpanTick)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	provider, err := NewProvider(Config{
		Enabled:  true,
		Exporter: "stdout",
	})
	require.NoError(t, err)

	_, span := provider.Tracer().Start(context.Background(), SpanTick)
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_ZeroSampleRateSamplesEverything(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	// SampleRate 0 and ServiceName "" are config holes; both fall back
	// to defaults rather than silencing every trace.
	provider, err := NewProvider(Config{
		Enabled:  true,
		Exporter: "file",
		FilePath: tracePath,
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	_, span := provider.Tracer().Start(context.Background(), SpanEnroll)
	require.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestProvider_ChildSpanSharesTraceID(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:  true,
		Exporter: "file",
		FilePath: tracePath,
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	tracer := provider.Tracer()
	ctx, tick := tracer.Start(context.Background(), SpanTick)
	_, batch := tracer.Start(ctx, SpanExecuteBatch)

	require.Equal(t, tick.SpanContext().TraceID(), batch.SpanContext().TraceID(),
		"batch span should join the tick's trace")

	batch.End()
	tick.End()
}
