// Package metrics instruments the reconciliation core with OpenTelemetry
// counters and histograms: outer-iteration counts, ADD/SET/DEL volumes, and
// ENOENT-driven retries. Recording must never block or fail a restore
// pass; every instrument call here is best-effort and its error, if any,
// is only logged.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// Recorder wraps the Meter the engine was configured with. A zero-value
// Recorder (Meter == nil) is valid and records nothing, so callers that
// don't care about metrics can skip setup entirely.
type Recorder struct {
	outerIterations metric.Int64Histogram
	adds            metric.Int64Counter
	sets            metric.Int64Counter
	dels            metric.Int64Counter
	enoentRetries   metric.Int64Counter
	restores        metric.Int64Counter

	logger *slog.Logger
}

// New builds a Recorder from meter, registering every instrument this
// package knows about. A nil meter yields a no-op Recorder.
func New(meter metric.Meter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if meter == nil {
		return &Recorder{logger: logger}
	}

	r := &Recorder{logger: logger}
	var err error

	if r.outerIterations, err = meter.Int64Histogram("confd.restore.outer_iterations",
		metric.WithDescription("outer convergence loop iterations per restore operation")); err != nil {
		logger.Warn("metrics: register outer_iterations histogram", "error", err)
	}
	if r.adds, err = meter.Int64Counter("confd.restore.adds",
		metric.WithDescription("ADD messages issued by the restore loop")); err != nil {
		logger.Warn("metrics: register adds counter", "error", err)
	}
	if r.sets, err = meter.Int64Counter("confd.restore.sets",
		metric.WithDescription("SET messages issued by the restore loop")); err != nil {
		logger.Warn("metrics: register sets counter", "error", err)
	}
	if r.dels, err = meter.Int64Counter("confd.restore.dels",
		metric.WithDescription("DEL messages issued by the deletion planner")); err != nil {
		logger.Warn("metrics: register dels counter", "error", err)
	}
	if r.enoentRetries, err = meter.Int64Counter("confd.restore.enoent_retries",
		metric.WithDescription("ENOENT outcomes that drove an inner-loop retry")); err != nil {
		logger.Warn("metrics: register enoent_retries counter", "error", err)
	}
	if r.restores, err = meter.Int64Counter("confd.restore.operations",
		metric.WithDescription("completed restore operations")); err != nil {
		logger.Warn("metrics: register operations counter", "error", err)
	}
	return r
}

func (r *Recorder) RecordOuterIterations(ctx context.Context, n int64) {
	if r == nil || r.outerIterations == nil {
		return
	}
	r.outerIterations.Record(ctx, n)
}

func (r *Recorder) IncAdd(ctx context.Context) {
	if r != nil {
		r.inc(ctx, r.adds)
	}
}

func (r *Recorder) IncSet(ctx context.Context) {
	if r != nil {
		r.inc(ctx, r.sets)
	}
}

func (r *Recorder) IncDel(ctx context.Context) {
	if r != nil {
		r.inc(ctx, r.dels)
	}
}

func (r *Recorder) IncENOENTRetry(ctx context.Context) {
	if r != nil {
		r.inc(ctx, r.enoentRetries)
	}
}

// RecordRestore marks one completed restore operation.
func (r *Recorder) RecordRestore(ctx context.Context) {
	if r != nil {
		r.inc(ctx, r.restores)
	}
}

func (r *Recorder) inc(ctx context.Context, c metric.Int64Counter) {
	if r == nil || c == nil {
		return
	}
	c.Add(ctx, 1)
}
