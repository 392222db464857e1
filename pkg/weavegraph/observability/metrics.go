package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records weavegraph metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordSuperstep records a completed superstep with how many frontier
	// nodes ran versus were skipped by the versions-seen filter.
	RecordSuperstep(ctx context.Context, ran, skipped int, duration time.Duration)

	// RecordBarrier records a barrier merge.
	RecordBarrier(ctx context.Context, updatedChannels int, duration time.Duration)

	// RecordSessionRun records a session run completion.
	RecordSessionRun(ctx context.Context, success bool, steps int, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, sessionID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions   metric.Int64Counter
	nodeLatency      metric.Float64Histogram
	nodeErrors       metric.Int64Counter
	supersteps       metric.Int64Counter
	superstepLatency metric.Float64Histogram
	skippedNodes     metric.Int64Counter
	barrierLatency   metric.Float64Histogram
	sessionRuns      metric.Int64Counter
	sessionLatency   metric.Float64Histogram
	checkpointSize   metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("weavegraph")

	nodeExecutions, err := meter.Int64Counter("weavegraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("weavegraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("weavegraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	supersteps, err := meter.Int64Counter("weavegraph.superstep.count",
		metric.WithDescription("Number of supersteps executed"),
	)
	if err != nil {
		return nil, err
	}

	superstepLatency, err := meter.Float64Histogram("weavegraph.superstep.latency_ms",
		metric.WithDescription("Superstep latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	skippedNodes, err := meter.Int64Counter("weavegraph.superstep.skipped_nodes",
		metric.WithDescription("Frontier nodes skipped for lack of fresh input"),
	)
	if err != nil {
		return nil, err
	}

	barrierLatency, err := meter.Float64Histogram("weavegraph.barrier.latency_ms",
		metric.WithDescription("Barrier merge latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sessionRuns, err := meter.Int64Counter("weavegraph.session.runs",
		metric.WithDescription("Number of session runs"),
	)
	if err != nil {
		return nil, err
	}

	sessionLatency, err := meter.Float64Histogram("weavegraph.session.latency_ms",
		metric.WithDescription("Session run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("weavegraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions:   nodeExecutions,
		nodeLatency:      nodeLatency,
		nodeErrors:       nodeErrors,
		supersteps:       supersteps,
		superstepLatency: superstepLatency,
		skippedNodes:     skippedNodes,
		barrierLatency:   barrierLatency,
		sessionRuns:      sessionRuns,
		sessionLatency:   sessionLatency,
		checkpointSize:   checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSuperstep records a completed superstep.
func (m *otelMetrics) RecordSuperstep(ctx context.Context, ran, skipped int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Int("ran", ran),
	}
	m.supersteps.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.superstepLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if skipped > 0 {
		m.skippedNodes.Add(ctx, int64(skipped))
	}
}

// RecordBarrier records a barrier merge.
func (m *otelMetrics) RecordBarrier(ctx context.Context, updatedChannels int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Int("updated_channels", updatedChannels),
	}
	m.barrierLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordSessionRun records a session run.
func (m *otelMetrics) RecordSessionRun(ctx context.Context, success bool, steps int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Int("steps", steps),
	}
	m.sessionRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sessionLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, sessionID string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("session_id", sessionID),
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
