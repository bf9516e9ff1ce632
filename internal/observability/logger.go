// Package observability provides logging, metrics, and tracing.
//
// It wires slog JSON logging, Prometheus metrics for the intake pipeline
// and query router, and OpenTelemetry tracing with an optional OTLP
// exporter.
package observability

import (
	"log/slog"
	"os"

	"github.com/hrdataworks/talentdb/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
