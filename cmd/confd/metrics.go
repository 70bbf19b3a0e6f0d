package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"

	confdmetrics "github.com/okt-galaktionov/confd/internal/metrics"
)

// setupMetrics builds a metrics.Recorder for the current invocation. When
// enabled is false (the default; opt in with --metrics) it returns a no-op
// Recorder and a no-op teardown, so the common case pays nothing for
// instrumentation. When enabled, it wires an OpenTelemetry stdout exporter
// on a short export interval — a real deployment would point this at an
// OTLP collector instead, but the exporter swap is a one-line change behind
// the same metric.MeterProvider interface.
func setupMetrics(ctx context.Context, logger *slog.Logger, enabled bool) (rec *confdmetrics.Recorder, teardown func(), err error) {
	if !enabled {
		return confdmetrics.New(nil, logger), func() {}, nil
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: build stdout exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(5*time.Second))),
	)

	meter := provider.Meter("github.com/okt-galaktionov/confd")
	recorder := confdmetrics.New(meter, logger)

	teardown = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics: shutdown", "error", err)
		}
	}
	return recorder, teardown, nil
}
