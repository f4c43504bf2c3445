package observability

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

// NewOTelLogger returns a slog.Logger whose records are emitted through the
// global OpenTelemetry LoggerProvider, correlated with the active span.
func NewOTelLogger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}

// NewOTelLoggerWithProvider is NewOTelLogger bound to an explicit provider.
func NewOTelLoggerWithProvider(name string, provider log.LoggerProvider) *slog.Logger {
	return otelslog.NewLogger(name, otelslog.WithLoggerProvider(provider))
}
