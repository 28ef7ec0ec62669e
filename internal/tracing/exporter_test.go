package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func stubSpan(name string, attrs ...attribute.KeyValue) tracetest.SpanStub {
	now := time.Now()
	return tracetest.SpanStub{
		Name:       name,
		StartTime:  now,
		EndTime:    now.Add(5 * time.Millisecond),
		Attributes: attrs,
	}
}

func countRecords(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
	}
	require.NoError(t, scanner.Err())
	return count
}

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces", "engine", "run.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err, "trace file should be created along with parents")

	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_AppendsAcrossRuns(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	for run := 0; run < 2; run++ {
		exporter, err := NewFileExporter(tracePath)
		require.NoError(t, err)

		spans := []sdktrace.ReadOnlySpan{stubSpan(SpanTick).Snapshot()}
		require.NoError(t, exporter.ExportSpans(context.Background(), spans))
		require.NoError(t, exporter.Shutdown(context.Background()))
	}

	require.Equal(t, 2, countRecords(t, tracePath),
		"a restarted engine should append, not truncate")
}

func TestFileExporter_WritesValidJSONL(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	traceID := trace.TraceID{0x01}
	parentID := trace.SpanID{0x02}
	spanID := trace.SpanID{0x03}

	start := time.Now()
	stub := tracetest.SpanStub{
		Name: SpanProcessNode,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  spanID,
		}),
		Parent: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  parentID,
		}),
		SpanKind:  trace.SpanKindInternal,
		StartTime: start,
		EndTime:   start.Add(42 * time.Millisecond),
		Status:    sdktrace.Status{Code: codes.Ok},
		Attributes: []attribute.KeyValue{
			attribute.String(AttrWorkflowID, "wf-1"),
			attribute.String(AttrNodeType, "send_sms"),
			attribute.Int(AttrBatchAttempt, 1),
		},
		Events: []sdktrace.Event{
			{
				Name: "retry.scheduled",
				Time: start.Add(10 * time.Millisecond),
				Attributes: []attribute.KeyValue{
					attribute.String(AttrErrorCode, "SMS_SEND_FAILED"),
				},
			},
		},
	}

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))

	file, err := os.Open(tracePath)
	require.NoError(t, err)
	defer file.Close()

	var record SpanRecord
	require.NoError(t, json.NewDecoder(file).Decode(&record), "each line should be one JSON object")

	require.Equal(t, traceID.String(), record.TraceID)
	require.Equal(t, spanID.String(), record.SpanID)
	require.Equal(t, parentID.String(), record.ParentSpanID)
	require.Equal(t, SpanProcessNode, record.Name)
	require.Equal(t, "INTERNAL", record.Kind)
	require.Equal(t, "OK", record.Status)
	require.Equal(t, 42.0, record.DurationMs)
	require.Equal(t, "wf-1", record.Attributes[AttrWorkflowID])
	require.Equal(t, "send_sms", record.Attributes[AttrNodeType])
	require.EqualValues(t, 1, record.Attributes[AttrBatchAttempt])
	require.Len(t, record.Events, 1)
	require.Equal(t, "retry.scheduled", record.Events[0].Name)
	require.Equal(t, "SMS_SEND_FAILED", record.Events[0].Attributes[AttrErrorCode])
}

func TestFileExporter_ErrorStatusCarriesMessage(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	stub := stubSpan(SpanExecuteBatch)
	stub.Status = sdktrace.Status{Code: codes.Error, Description: "twilio unavailable: status 503"}

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))

	file, err := os.Open(tracePath)
	require.NoError(t, err)
	defer file.Close()

	var record SpanRecord
	require.NoError(t, json.NewDecoder(file).Decode(&record))
	require.Equal(t, "ERROR", record.Status)
	require.Equal(t, "twilio unavailable: status 503", record.StatusMsg)
}

func TestFileExporter_EmptyBatchWritesNothing(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
	require.NoError(t, exporter.Shutdown(context.Background()))

	info, err := os.Stat(tracePath)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestFileExporter_ShutdownIsIdempotent(t *testing.T) {
	exporter, err := NewFileExporter(filepath.Join(t.TempDir(), "traces.jsonl"))
	require.NoError(t, err)

	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_BatchWritesEverySpan(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	spans := make([]sdktrace.ReadOnlySpan, 4)
	for i := range spans {
		spans[i] = stubSpan(SpanTick, attribute.Int(AttrTickClaimed, i)).Snapshot()
	}
	require.NoError(t, exporter.ExportSpans(context.Background(), spans))
	require.NoError(t, exporter.Shutdown(context.Background()))

	require.Equal(t, 4, countRecords(t, tracePath))
}

func TestFileExporter_ConcurrentExportsStayWellFormed(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	const workers = 8
	const spansPerWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < spansPerWorker; i++ {
				stub := stubSpan(SpanProcessNode, attribute.Int("worker", worker))
				spans := []sdktrace.ReadOnlySpan{stub.Snapshot()}
				if err := exporter.ExportSpans(context.Background(), spans); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, exporter.Shutdown(context.Background()))

	file, err := os.Open(tracePath)
	require.NoError(t, err)
	defer file.Close()

	count := 0
	decoder := json.NewDecoder(file)
	for {
		var record SpanRecord
		if err := decoder.Decode(&record); err != nil {
			break
		}
		require.Equal(t, SpanProcessNode, record.Name, "interleaved writes must not corrupt records")
		count++
	}
	require.Equal(t, workers*spansPerWorker, count)
}

func TestSpanKindToString(t *testing.T) {
	tests := []struct {
		kind trace.SpanKind
		want string
	}{
		{trace.SpanKindInternal, "INTERNAL"},
		{trace.SpanKindServer, "SERVER"},
		{trace.SpanKindClient, "CLIENT"},
		{trace.SpanKindProducer, "PRODUCER"},
		{trace.SpanKindConsumer, "CONSUMER"},
		{trace.SpanKindUnspecified, "UNSPECIFIED"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, spanKindToString(tt.kind))
		})
	}
}
