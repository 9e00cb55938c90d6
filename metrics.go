package statevault

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

// vaultMetrics publishes operation counters through the global otel meter
// provider. Instrument creation failures are logged once and the affected
// instrument stays disabled; metrics must never break the data path.
type vaultMetrics struct {
	attempts      metric.Int64Counter
	contentions   metric.Int64Counter
	indexWrites   metric.Int64Counter
	autosaveTicks metric.Int64Counter
	backoffMillis metric.Int64Histogram
}

func newVaultMetrics(logger pslog.Logger) *vaultMetrics {
	meter := otel.Meter("pkt.systems/statevault")
	m := &vaultMetrics{}
	var err error

	m.attempts, err = meter.Int64Counter(
		"statevault.attempts",
		metric.WithDescription("Load/save attempts issued against the backend"),
	)
	logMetricInitError(logger, "statevault.attempts", err)

	m.contentions, err = meter.Int64Counter(
		"statevault.contention",
		metric.WithDescription("Attempts rejected by a live lease held elsewhere"),
	)
	logMetricInitError(logger, "statevault.contention", err)

	m.indexWrites, err = meter.Int64Counter(
		"statevault.index.writes",
		metric.WithDescription("Best-effort secondary index writes issued"),
	)
	logMetricInitError(logger, "statevault.index.writes", err)

	m.autosaveTicks, err = meter.Int64Counter(
		"statevault.autosave.ticks",
		metric.WithDescription("Autosave pulse ticks that produced a save attempt"),
	)
	logMetricInitError(logger, "statevault.autosave.ticks", err)

	m.backoffMillis, err = meter.Int64Histogram(
		"statevault.backoff.duration_ms",
		metric.WithDescription("Jittered backoff slept between attempts"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "statevault.backoff.duration_ms", err)

	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil {
		return
	}
	logger.Warn("vault.metrics.init_failed", "metric", name, "error", err)
}

func kindAttr(kind ActionKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind.String()))
}

func (m *vaultMetrics) attempt(ctx context.Context, kind ActionKind) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, kindAttr(kind))
}

func (m *vaultMetrics) contended(ctx context.Context, kind ActionKind) {
	if m == nil || m.contentions == nil {
		return
	}
	m.contentions.Add(ctx, 1, kindAttr(kind))
}

func (m *vaultMetrics) indexWrite(ctx context.Context) {
	if m == nil || m.indexWrites == nil {
		return
	}
	m.indexWrites.Add(ctx, 1)
}

func (m *vaultMetrics) autosaveTick(ctx context.Context) {
	if m == nil || m.autosaveTicks == nil {
		return
	}
	m.autosaveTicks.Add(ctx, 1)
}

func (m *vaultMetrics) backoff(ctx context.Context, d time.Duration) {
	if m == nil || m.backoffMillis == nil {
		return
	}
	m.backoffMillis.Record(ctx, d.Milliseconds())
}
