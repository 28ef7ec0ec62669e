package log

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "UNKNOWN", Level(99).String())
}

func TestSafeGoRecoversPanic(t *testing.T) {
	// Logger may be uninitialized here; SafeGo must still swallow the panic.
	SafeGo("test-panic", func() {
		panic("boom")
	})

	done := make(chan struct{})
	SafeGo("test-ok", func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "SafeGo goroutine never ran")
	}
}

func TestInitWritesFileAndPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "followup.log")

	cleanup, err := Init(Options{Path: path, MinLevel: LevelDebug})
	require.NoError(t, err, "Init should succeed with a writable path")
	t.Cleanup(cleanup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := Subscribe(ctx)
	require.NotNil(t, ch, "Subscribe should return a channel after Init")

	var line string
	var mu sync.Mutex
	got := make(chan struct{})
	go func() {
		ev := <-ch
		mu.Lock()
		line = ev.Payload
		mu.Unlock()
		close(got)
	}()

	Info(CatEngine, "execution advanced", "execution_id", "abc", "node_type", "send_sms")

	select {
	case <-got:
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for published log line")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, line, "[INFO]")
	require.Contains(t, line, "[engine]")
	require.Contains(t, line, "execution advanced")
	require.Contains(t, line, "execution_id=abc")

	data, err := os.ReadFile(path) //nolint:gosec // test-owned temp path
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "execution advanced"),
		"log file should contain the written message")
}
