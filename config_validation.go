package serializers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/internal/monitoring"
)

func parseFormat(s string) (Format, error) {
	return codec.ParseFormat(s)
}

func validateFormat(format string) error {
	if _, err := parseFormat(format); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return nil
}

func validateIndent(indent int) error {
	if indent < 0 || indent > MaxIndent {
		return fmt.Errorf("indent must be between 0 and %d, got %d", MaxIndent, indent)
	}
	return nil
}

func validateDepth(depth *int) error {
	if depth != nil && *depth < -1 {
		return fmt.Errorf("depth must be -1 (unbounded) or positive, got %d", *depth)
	}
	return nil
}

func validateLogLevel(level string) error {
	if _, err := monitoring.ParseLogLevel(level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

func validateLogFormat(format string) error {
	if _, err := monitoring.ParseLogFormat(format); err != nil {
		return fmt.Errorf("log format: %w", err)
	}
	return nil
}

// joinConfigErrors reports every invalid setting at once.
func joinConfigErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

func newConfiguredLogger(w io.Writer, component, level, format string) *slog.Logger {
	lvl, err := monitoring.ParseLogLevel(level)
	if err != nil {
		lvl = monitoring.LevelInfo
	}
	f, err := monitoring.ParseLogFormat(format)
	if err != nil {
		f = monitoring.FormatText
	}
	return monitoring.NewLogger(monitoring.LoggerConfig{
		Level:     lvl,
		Format:    f,
		Output:    w,
		Component: component,
		Version:   Version,
	})
}
