// Package log provides structured logging for followup.
// It wraps a zerolog writer with category-tagged fields and publishes
// every rendered line to a pub/sub broker so subscribers can tail the
// engine without touching the log file.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zjrosen/followup/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a Level.
// Unknown strings default to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatEngine    Category = "engine"    // Executor core: walk loop, retries, step results
	CatScheduler Category = "scheduler" // Tick loop, claims, dispatch
	CatTrigger   Category = "trigger"   // Enrollment trigger fan-out
	CatDB        Category = "db"        // Database operations and migrations
	CatConfig    Category = "config"    // Configuration loading/saving
	CatProvider  Category = "provider"  // SMS/email adapter calls
	CatCache     Category = "cache"     // Per-tick cache operations
	CatWatcher   Category = "watcher"   // Database file watcher events
	CatHTTP      Category = "http"      // Health/metrics listener
	CatPanic     Category = "panic"     // Recovered goroutine panics
)

// Options configures the global logger.
type Options struct {
	// Path is the log file location. Empty disables the file sink.
	Path string
	// Console mirrors log lines to stderr with zerolog's console writer.
	Console bool
	// MinLevel is the minimum severity written.
	MinLevel Level
}

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	zl       zerolog.Logger
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the global logger.
// Returns a cleanup function to close the log file.
func Init(opts Options) (func(), error) {
	var initErr error
	once.Do(func() {
		defaultLogger, initErr = newLogger(opts)
	})
	if initErr != nil {
		return nil, initErr
	}
	// Handles the case where once.Do already ran and failed.
	if defaultLogger == nil {
		return nil, fmt.Errorf("logger initialization failed or already attempted")
	}
	return func() {
		if defaultLogger != nil && defaultLogger.file != nil {
			_ = defaultLogger.file.Close()
		}
	}, nil
}

func newLogger(opts Options) (*Logger, error) {
	var sinks []io.Writer
	var file *os.File

	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path is user-controlled log path
		if err != nil {
			return nil, err
		}
		file = f
		sinks = append(sinks, f)
	}
	if opts.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if len(sinks) == 0 {
		sinks = append(sinks, io.Discard)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(opts.MinLevel.zerologLevel()).
		With().Timestamp().Logger()

	return &Logger{
		file:     file,
		zl:       zl,
		enabled:  true,
		minLevel: opts.MinLevel,
		broker:   pubsub.NewBroker[string](),
	}, nil
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.enabled = enabled
		defaultLogger.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.minLevel = level
		defaultLogger.zl = defaultLogger.zl.Level(level.zerologLevel())
		defaultLogger.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

func write(level Level, cat Category, msg string, fields ...any) {
	if defaultLogger == nil || !defaultLogger.enabled {
		return
	}
	if level < defaultLogger.minLevel {
		return
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	ev := defaultLogger.zl.WithLevel(level.zerologLevel()).Str("category", string(cat))

	// Broker line format: [ERROR] [engine] message key=value key2=value2
	entry := fmt.Sprintf("[%s] [%s] %s", level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		value := fields[i+1]
		ev = ev.Interface(key, value)
		entry += fmt.Sprintf(" %s=%v", key, value)
	}
	// Odd field count - record the orphan key with no value.
	if len(fields)%2 != 0 {
		key := fmt.Sprintf("%v", fields[len(fields)-1])
		ev = ev.Interface(key, "<missing>")
		entry += fmt.Sprintf(" %s=<missing>", key)
	}
	ev.Msg(msg)

	// Publish to subscribers (non-blocking).
	if defaultLogger.broker != nil {
		defaultLogger.broker.Publish(pubsub.CreatedEvent, entry)
	}
}

// LogEvent is a pubsub event containing a rendered log line.
type LogEvent = pubsub.Event[string]

// Subscribe returns a channel of rendered log lines.
// The subscription is cleaned up when the context is cancelled.
// Returns nil if the logger has not been initialized.
func Subscribe(ctx context.Context) <-chan LogEvent {
	if defaultLogger == nil || defaultLogger.broker == nil {
		return nil
	}
	return defaultLogger.broker.Subscribe(ctx)
}
