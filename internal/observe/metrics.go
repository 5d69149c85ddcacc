// Package observe provides observability primitives for entunify:
// OpenTelemetry metrics, tracing, and trace-aware structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them into a private Prometheus registry which [WriteTextfile] dumps
// in the node-exporter textfile format, since the tool is a short-lived batch
// process with nothing to scrape. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all entunify metrics.
const meterName = "github.com/MrWong99/entunify"

// Import outcomes recorded on [Metrics.EntitiesImported].
const (
	OutcomeCreated = "created"
	OutcomeMerged  = "merged"
	OutcomeFailed  = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// OperationDuration tracks wall time of a whole operation. Use with attribute:
	//   attribute.String("operation", ...)
	OperationDuration metric.Float64Histogram

	// FragmentsLoaded counts fragment files parsed. Use with attribute:
	//   attribute.String("source", "main"|"extra")
	FragmentsLoaded metric.Int64Counter

	// EntitiesImported counts imported entities. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("outcome", ...)
	EntitiesImported metric.Int64Counter

	// KeysNegated counts keys that an import marked as absent from a release.
	//   attribute.String("engine", ...)
	KeysNegated metric.Int64Counter

	// EntitiesExported counts entities written by export. Use with attribute:
	//   attribute.String("mode", ...)
	EntitiesExported metric.Int64Counter

	// Diagnostics counts warnings raised while flattening. Use with attribute:
	//   attribute.String("mode", ...)
	Diagnostics metric.Int64Counter
}

// durationBuckets are histogram bucket boundaries (in seconds) for batch
// operations over a database of a few thousand files.
var durationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.OperationDuration, err = m.Float64Histogram("entunify.operation.duration",
		metric.WithDescription("Wall time of load, import, export and count operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FragmentsLoaded, err = m.Int64Counter("entunify.fragments.loaded",
		metric.WithDescription("Total fragment files parsed by source."),
	); err != nil {
		return nil, err
	}
	if met.EntitiesImported, err = m.Int64Counter("entunify.entities.imported",
		metric.WithDescription("Total imported entities by engine and outcome."),
	); err != nil {
		return nil, err
	}
	if met.KeysNegated, err = m.Int64Counter("entunify.keys.negated",
		metric.WithDescription("Total keys marked absent from the importing engine."),
	); err != nil {
		return nil, err
	}
	if met.EntitiesExported, err = m.Int64Counter("entunify.entities.exported",
		metric.WithDescription("Total exported entities by mode."),
	); err != nil {
		return nil, err
	}
	if met.Diagnostics, err = m.Int64Counter("entunify.export.diagnostics",
		metric.WithDescription("Total export warnings by mode."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Time starts timing operation and returns a func that records the elapsed
// time on [Metrics.OperationDuration].
//
//	defer m.Time(ctx, "export")()
func (m *Metrics) Time(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		m.OperationDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("operation", operation)),
		)
	}
}

// RecordFragments adds n parsed fragment files from source.
func (m *Metrics) RecordFragments(ctx context.Context, source string, n int) {
	m.FragmentsLoaded.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordImport records one imported entity with the given outcome.
func (m *Metrics) RecordImport(ctx context.Context, engine, outcome string) {
	m.EntitiesImported.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordNegated adds n keys negated for engine.
func (m *Metrics) RecordNegated(ctx context.Context, engine string, n int) {
	if n == 0 {
		return
	}
	m.KeysNegated.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}

// RecordExport adds n exported entities for mode.
func (m *Metrics) RecordExport(ctx context.Context, mode string, n int) {
	m.EntitiesExported.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordDiagnostic records one export warning for mode.
func (m *Metrics) RecordDiagnostic(ctx context.Context, mode string) {
	m.Diagnostics.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}
