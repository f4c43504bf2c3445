// Package observability provides logging, metrics and tracing for the event core.
//
// Features:
//   - Structured logging via slog, optionally bridged to OpenTelemetry logs
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"strings"
	"time"
)

// WithUnit adds the unit-of-work id to a logger.
func WithUnit(logger *slog.Logger, unitID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("unit_id", unitID))
}

// LogPublish logs a dispatched event.
func LogPublish(logger *slog.Logger, eventType string, handlers int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event published",
		slog.String("event_type", eventType),
		slog.Int("handlers", handlers),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogHandlerError logs a handler failure that aborted a dispatch.
func LogHandlerError(logger *slog.Logger, eventType, descriptorID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event handler failed",
		slog.String("event_type", eventType),
		slog.String("handler_id", descriptorID),
		slog.String("error", err.Error()),
	)
}

// LogDeliveryDropped logs an event that could not be scheduled for deferred delivery.
func LogDeliveryDropped(logger *slog.Logger, eventType, stage, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("deferred delivery dropped",
		slog.String("event_type", eventType),
		slog.String("stage", stage),
		slog.String("reason", reason),
	)
}

// LogCacheError logs a failed type-hierarchy cache population (non-fatal).
func LogCacheError(logger *slog.Logger, typeName string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("type cache population failed",
		slog.String("type", typeName),
		slog.String("error", err.Error()),
	)
}

// LogBatchFlushed logs delivery of an accumulated batch.
func LogBatchFlushed(logger *slog.Logger, eventType, stage string, size int) {
	if logger == nil {
		return
	}
	logger.Debug("batch flushed",
		slog.String("event_type", eventType),
		slog.String("stage", stage),
		slog.Int("size", size),
	)
}

// LogScopeClosed logs teardown of a scope handle.
func LogScopeClosed(logger *slog.Logger, removed int, outermost bool) {
	if logger == nil {
		return
	}
	logger.Debug("scope closed",
		slog.Int("handlers_removed", removed),
		slog.Bool("outermost", outermost),
	)
}

// LogUnitStage logs a fired unit-of-work stage.
func LogUnitStage(logger *slog.Logger, unitID, stage string, callbacks int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("unit stage failed",
			slog.String("unit_id", unitID),
			slog.String("stage", stage),
			slog.Int("callbacks", callbacks),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("unit stage fired",
		slog.String("unit_id", unitID),
		slog.String("stage", stage),
		slog.Int("callbacks", callbacks),
	)
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
// Unknown names yield slog.LevelInfo.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
