// Package observability provides structured logging, metrics collection,
// health checks and request tracing for carepay.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogLevel is a textual slog level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer // defaults to os.Stderr
	AddSource bool

	// ServiceName and ServiceVersion are stamped on every record.
	ServiceName    string
	ServiceVersion string
}

// DefaultLogConfig is the development setup: text on stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatText,
		Output:         os.Stderr,
		ServiceName:    "carepay",
		ServiceVersion: "dev",
	}
}

// ProductionLogConfig emits JSON on stdout with source locations.
func ProductionLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatJSON,
		Output:         os.Stdout,
		AddSource:      true,
		ServiceName:    "carepay",
		ServiceVersion: "unknown",
	}
}

// LogConfigFor builds a LogConfig from already-loaded settings. Empty values
// keep the environment's defaults.
func LogConfigFor(env, level, format, version string) LogConfig {
	cfg := DefaultLogConfig()
	if env == "production" {
		cfg = ProductionLogConfig()
	}
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if format != "" {
		cfg.Format = LogFormat(strings.ToLower(format))
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// LoggerFromEnv reads APP_ENV, LOG_LEVEL, LOG_FORMAT and APP_VERSION. It is
// used before the configuration file has been loaded.
func LoggerFromEnv() *slog.Logger {
	return NewLogger(LogConfigFor(
		os.Getenv("APP_ENV"),
		os.Getenv("LOG_LEVEL"),
		os.Getenv("LOG_FORMAT"),
		os.Getenv("APP_VERSION"),
	))
}

// NewLogger builds a slog.Logger whose records carry the service identity
// and the tracing values found on the context.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseSlogLevel(cfg.Level), AddSource: cfg.AddSource}

	var base slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.Format == LogFormatJSON {
		base = slog.NewJSONHandler(out, opts)
	}

	var static []slog.Attr
	if cfg.ServiceName != "" {
		static = append(static, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		static = append(static, slog.String("version", cfg.ServiceVersion))
	}
	if len(static) > 0 {
		base = base.WithAttrs(static)
	}

	return slog.New(contextHandler{next: base})
}

func parseSlogLevel(level LogLevel) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// contextHandler copies correlation id, request id and rpc method from the
// record's context onto the record.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, kv := range [...]struct{ key, value string }{
		{CorrelationIDKey, CorrelationIDFromContext(ctx)},
		{RequestIDKey, RequestIDFromContext(ctx)},
		{RPCMethodKey, RPCMethodFromContext(ctx)},
	} {
		if kv.value != "" {
			r.AddAttrs(slog.String(kv.key, kv.value))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}
