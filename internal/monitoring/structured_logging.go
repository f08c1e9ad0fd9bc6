package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var logLevelNames = map[LogLevel]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// String returns the string representation of the log level
func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLogLevel parses debug, info, warn or error, case-insensitively.
func ParseLogLevel(s string) (LogLevel, error) {
	for level, name := range logLevelNames {
		if strings.EqualFold(s, name) {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
	FormatConsole
)

var logFormatNames = map[LogFormat]string{
	FormatJSON:    "json",
	FormatText:    "text",
	FormatConsole: "console",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseLogFormat parses json, text or console, case-insensitively.
func ParseLogFormat(s string) (LogFormat, error) {
	for format, name := range logFormatNames {
		if strings.EqualFold(s, name) {
			return format, nil
		}
	}
	return FormatText, fmt.Errorf("unknown log format: %s", s)
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer
	Component string
	Version   string
	Fields    map[string]any
}

// NewLogger creates a slog logger with the given configuration. Every record
// carries the service name, and the component and version when set.
func NewLogger(config LoggerConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.Level == LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	case FormatConsole:
		handler = NewConsoleHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	attrs := []any{slog.String("service", "serializers")}
	if config.Component != "" {
		attrs = append(attrs, slog.String("component", config.Component))
	}
	if config.Version != "" {
		attrs = append(attrs, slog.String("version", config.Version))
	}
	for k, v := range config.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.New(handler).With(attrs...)
}

// LogOperation logs a finished operation with standard fields.
func LogOperation(ctx context.Context, logger *slog.Logger, operation string, duration time.Duration, err error, metadata map[string]any) {
	args := []any{
		slog.String("operation", operation),
		slog.String("duration", duration.String()),
		slog.Int64("duration_ms", duration.Milliseconds()),
	}
	for k, v := range metadata {
		args = append(args, slog.Any(k, v))
	}

	if err != nil {
		args = append(args, slog.String("error", err.Error()), slog.String("error_type", fmt.Sprintf("%T", err)))
		logger.ErrorContext(ctx, "operation failed", args...)
		return
	}
	logger.DebugContext(ctx, "operation completed", args...)
}

// ConsoleHandler provides colorized console output
type ConsoleHandler struct {
	handler slog.Handler
	output  io.Writer
	attrs   []slog.Attr
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(output io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		handler: slog.NewTextHandler(output, opts),
		output:  output,
	}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ConsoleHandler) Handle(ctx context.Context, record slog.Record) error {
	var levelStr string
	switch record.Level {
	case slog.LevelDebug:
		levelStr = "\033[36mDEBUG\033[0m" // Cyan
	case slog.LevelInfo:
		levelStr = "\033[32mINFO\033[0m" // Green
	case slog.LevelWarn:
		levelStr = "\033[33mWARN\033[0m" // Yellow
	case slog.LevelError:
		levelStr = "\033[31mERROR\033[0m" // Red
	default:
		levelStr = record.Level.String()
	}

	fmt.Fprintf(h.output, "%s [%s] %s", record.Time.Format("15:04:05.000"), levelStr, record.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(h.output, " %s=%s", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.output, " %s=%s", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.output)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithAttrs(attrs),
		output:  h.output,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithGroup(name),
		output:  h.output,
		attrs:   h.attrs,
	}
}
