package logger

import (
	"context"
	"io"
	"time"

	"tieredcache/internal/models"

	"github.com/rs/zerolog"
)

// ConsoleLogger implements Service on top of zerolog.
// It is used when no log database is configured.
type ConsoleLogger struct {
	log zerolog.Logger
}

// NewConsoleLogger creates a logger writing human-readable lines to out.
// level is parsed as a zerolog level and falls back to info.
func NewConsoleLogger(out io.Writer, level string) *ConsoleLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}

	return &ConsoleLogger{
		log: zerolog.New(writer).Level(lvl).With().Timestamp().Logger(),
	}
}

// NewJSONLogger creates a logger writing one JSON object per line to out
func NewJSONLogger(out io.Writer, level string) *ConsoleLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return &ConsoleLogger{
		log: zerolog.New(out).Level(lvl).With().Timestamp().Logger(),
	}
}

// LogInfo logs an informational message
func (c *ConsoleLogger) LogInfo(ctx context.Context, operation, message string, metadata map[string]interface{}) {
	c.event(ctx, c.log.Info(), operation, "", metadata).Msg(message)
}

// LogSuccess logs a successful cache operation at debug level; hits and sets are frequent
func (c *ConsoleLogger) LogSuccess(ctx context.Context, operation, cacheKey, message string, metadata map[string]interface{}) {
	c.event(ctx, c.log.Debug(), operation, cacheKey, metadata).Msg(message)
}

// LogError logs an error; high severity maps to error level, anything else to warn
func (c *ConsoleLogger) LogError(ctx context.Context, operation, cacheKey, message string, err error, severity models.LogSeverity, metadata map[string]interface{}) {
	ev := c.log.Warn()
	if severity == models.LogSeverityHigh {
		ev = c.log.Error()
	}
	c.event(ctx, ev, operation, cacheKey, metadata).
		Err(err).
		Str("severity", string(severity)).
		Msg(message)
}

// Close is a no-op; the writer is owned by the caller
func (c *ConsoleLogger) Close() error {
	return nil
}

func (c *ConsoleLogger) event(ctx context.Context, ev *zerolog.Event, operation, cacheKey string, metadata map[string]interface{}) *zerolog.Event {
	logEvent := GetLogEvent(ctx)
	ev = ev.Str("operation", operation).
		Str("process_id", logEvent.ProcessID).
		Str("process_type", string(logEvent.ProcessType))
	if cacheKey != "" {
		ev = ev.Str("cache_key", cacheKey)
	}
	if logEvent.ClientIP != "" {
		ev = ev.Str("client_ip", logEvent.ClientIP)
	}
	if len(metadata) > 0 {
		ev = ev.Fields(metadata)
	}
	return ev
}

// NopLogger discards everything
type NopLogger struct{}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() NopLogger {
	return NopLogger{}
}

func (NopLogger) LogInfo(context.Context, string, string, map[string]interface{}) {}
func (NopLogger) LogSuccess(context.Context, string, string, string, map[string]interface{}) {}
func (NopLogger) LogError(context.Context, string, string, string, error, models.LogSeverity, map[string]interface{}) {
}
func (NopLogger) Close() error { return nil }
