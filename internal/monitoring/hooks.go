package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Metric names recorded by MetricsObservabilityHook and the engine.
const (
	MetricStarted   = "serializers.operation.started"
	MetricSucceeded = "serializers.operation.succeeded"
	MetricFailed    = "serializers.operation.failed"
	MetricDuration  = "serializers.operation.duration"
	MetricErrors    = "serializers.errors"
	MetricFlattened = "serializers.flattened"
)

// ObservabilityHook defines hooks for monitoring serializer operations
type ObservabilityHook interface {
	// Called before a convert, revert, render or parse starts
	OnOperationStart(ctx context.Context, operation string, metadata map[string]any)

	// Called after the operation completes (success or failure)
	OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any)

	// Called when errors occur
	OnError(ctx context.Context, operation string, err error, metadata map[string]any)

	// Called when a nested field is replaced by its flat form
	OnFlatten(ctx context.Context, field string, reason string, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnFlatten(ctx context.Context, field string, reason string, metadata map[string]any) {
}

// LoggingObservabilityHook logs all operations
type LoggingObservabilityHook struct {
	logger *slog.Logger
}

// NewLoggingObservabilityHook creates a new logging observability hook
func NewLoggingObservabilityHook(logger *slog.Logger) *LoggingObservabilityHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObservabilityHook{
		logger: logger,
	}
}

func (l *LoggingObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	l.logger.DebugContext(ctx, "operation started", "operation", operation, "metadata", metadata)
}

func (l *LoggingObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	if err != nil {
		l.logger.ErrorContext(ctx, "operation failed", "operation", operation, "duration", duration, "error", err, "metadata", metadata)
	} else {
		l.logger.DebugContext(ctx, "operation completed", "operation", operation, "duration", duration, "metadata", metadata)
	}
}

func (l *LoggingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	l.logger.ErrorContext(ctx, "operation error", "operation", operation, "error", err, "metadata", metadata)
}

func (l *LoggingObservabilityHook) OnFlatten(ctx context.Context, field string, reason string, metadata map[string]any) {
	l.logger.InfoContext(ctx, "field flattened", "field", field, "reason", reason, "metadata", metadata)
}

// MetricsObservabilityHook collects metrics for operations
type MetricsObservabilityHook struct {
	collector MetricsCollector
}

// NewMetricsObservabilityHook creates a new metrics observability hook
func NewMetricsObservabilityHook(collector MetricsCollector) *MetricsObservabilityHook {
	if collector == nil {
		collector = &NoOpMetricsCollector{}
	}
	return &MetricsObservabilityHook{
		collector: collector,
	}
}

func (m *MetricsObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	m.collector.IncrementCounter(MetricStarted, operationTags(operation, metadata))
}

func (m *MetricsObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	tags := operationTags(operation, metadata)
	if err != nil {
		tags["status"] = "error"
		m.collector.IncrementCounter(MetricFailed, tags)
	} else {
		tags["status"] = "success"
		m.collector.IncrementCounter(MetricSucceeded, tags)
	}

	m.collector.RecordTiming(MetricDuration, duration, tags)
}

func (m *MetricsObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	tags := map[string]string{
		"operation": operation,
		"error":     fmt.Sprintf("%T", err),
	}
	m.collector.IncrementCounter(MetricErrors, tags)
}

func (m *MetricsObservabilityHook) OnFlatten(ctx context.Context, field string, reason string, metadata map[string]any) {
	m.collector.IncrementCounter(MetricFlattened, map[string]string{"reason": reason})
}

func operationTags(operation string, metadata map[string]any) map[string]string {
	tags := map[string]string{"operation": operation}
	if format, ok := metadata["format"].(string); ok && format != "" {
		tags["format"] = format
	}
	return tags
}

// CompositeObservabilityHook combines multiple hooks
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

// NewCompositeObservabilityHook creates a new composite hook
func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	return &CompositeObservabilityHook{
		hooks: hooks,
	}
}

func (c *CompositeObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnOperationStart(ctx, operation, metadata)
	}
}

func (c *CompositeObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnOperationComplete(ctx, operation, duration, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnError(ctx, operation, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnFlatten(ctx context.Context, field string, reason string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnFlatten(ctx, field, reason, metadata)
	}
}
