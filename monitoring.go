package serializers

import (
	"log/slog"
	"time"

	"github.com/hengadev/serializers/internal/monitoring"
)

// ObservabilityHook receives the start, end, errors and flatten events of
// every top-level call.
type ObservabilityHook = monitoring.ObservabilityHook

// MetricsCollector receives counters and timings of top-level calls.
type MetricsCollector = monitoring.MetricsCollector

// InMemoryMetricsCollector keeps metrics in memory.
type InMemoryMetricsCollector = monitoring.InMemoryMetricsCollector

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return monitoring.NewInMemoryMetricsCollector()
}

// NewMetricsHook returns a hook recording operation counts and durations into
// collector.
func NewMetricsHook(collector MetricsCollector) ObservabilityHook {
	return monitoring.NewMetricsObservabilityHook(collector)
}

// NewLoggingHook returns a hook logging every operation to logger.
func NewLoggingHook(logger *slog.Logger) ObservabilityHook {
	return monitoring.NewLoggingObservabilityHook(logger)
}

// CombineHooks returns a hook calling each of hooks in order.
func CombineHooks(hooks ...ObservabilityHook) ObservabilityHook {
	return monitoring.NewCompositeObservabilityHook(hooks...)
}

// observe runs fn as the named operation, reporting it to the logger, the
// hook and the metrics collector of the call.
func (t *Traversal) observe(operation string, metadata map[string]any, fn func() error) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["serializer"] = t.root.describe()

	if t.hook != nil {
		t.hook.OnOperationStart(t.ctx, operation, metadata)
	}
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	monitoring.LogOperation(t.ctx, t.Logger(), operation, duration, err, metadata)
	if t.hook != nil {
		if err != nil {
			t.hook.OnError(t.ctx, operation, err, metadata)
		}
		t.hook.OnOperationComplete(t.ctx, operation, duration, err, metadata)
	}
	if t.metrics != nil {
		tags := map[string]string{"operation": operation}
		if err != nil {
			tags["status"] = "error"
			t.metrics.IncrementCounter(monitoring.MetricFailed, tags)
		} else {
			tags["status"] = "success"
			t.metrics.IncrementCounter(monitoring.MetricSucceeded, tags)
		}
		t.metrics.RecordTiming(monitoring.MetricDuration, duration, tags)
	}
	return err
}

func (s *Serializer) describe() string {
	if s.name != "" {
		return s.name
	}
	if s.class != nil {
		if str, ok := s.class.(interface{ String() string }); ok {
			return str.String()
		}
	}
	return "serializer"
}
