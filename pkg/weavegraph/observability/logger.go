// Package observability provides production-grade observability for
// weavegraph: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
)

// EnrichLogger adds session context to a logger. Returns a new logger with
// session_id, node_id, and step fields.
func EnrichLogger(logger *slog.Logger, sessionID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogSessionStart logs the start of a session run.
func LogSessionStart(logger *slog.Logger, sessionID string) {
	if logger == nil {
		return
	}
	logger.Info("session starting",
		slog.String("session_id", sessionID),
	)
}

// LogSessionComplete logs successful session completion.
func LogSessionComplete(logger *slog.Logger, sessionID string, steps int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("session completed",
		slog.String("session_id", sessionID),
		slog.Int("steps", steps),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSessionError logs session failure.
func LogSessionError(logger *slog.Logger, sessionID string, err error, step int) {
	if logger == nil {
		return
	}
	logger.Error("session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Int("step", step),
	)
}

// LogStep logs the outcome of one superstep.
func LogStep(logger *slog.Logger, sessionID string, step, ran, skipped int, updated []string) {
	if logger == nil {
		return
	}
	logger.Debug("superstep completed",
		slog.String("session_id", sessionID),
		slog.Int("step", step),
		slog.Int("ran", ran),
		slog.Int("skipped", skipped),
		slog.Any("updated_channels", updated),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, sessionID, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, sessionID, nodeID string, step int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, sessionID, nodeID string, step int, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, sessionID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("session_id", sessionID),
		slog.Int("step", step),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal unless configured
// otherwise).
func LogCheckpointError(logger *slog.Logger, sessionID string, step int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("session_id", sessionID),
		slog.Int("step", step),
		slog.String("error", err.Error()),
	)
}
