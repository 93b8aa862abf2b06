// Package observe provides application-wide observability primitives for the
// ingestion gateway: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider]; it registers the metrics
// with the default Prometheus registry. This package does not serve a /metrics
// HTTP endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/oneilstokeseqrm/live-transcription-fastapi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks the Transcription Adapter's latency (§4.4).
	TranscriptionDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency across both the cleaner (§4.5) and
	// the intelligence extractor (§4.6). Use with attribute "stage".
	LLMDuration metric.Float64Histogram

	// ExtractDuration tracks end-to-end structured-extraction latency,
	// including schema-validation retries (§4.6.2).
	ExtractDuration metric.Float64Histogram

	// PublishDuration tracks the Fan-Out Publisher's dual-write latency (§4.3).
	PublishDuration metric.Float64Histogram

	// PersistDuration tracks the intelligence persist transaction's latency (§4.6.4).
	PersistDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// UploadJobTransitions counts upload_jobs state transitions (§4.10.4).
	// Use with attributes: attribute.String("status", ...).
	UploadJobTransitions metric.Int64Counter

	// InteractionsIngested counts completed ingestions by interaction type.
	// Use with attribute: attribute.String("interaction_type", ...).
	InteractionsIngested metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks the number of open /listen WebSocket sessions (§4.9).
	ActiveLiveSessions metric.Int64UpDownCounter

	// PendingUploadJobs tracks upload jobs currently queued or processing (§4.10).
	PendingUploadJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), wide
// enough to cover both sub-second cleaner calls and the ~120s transcription
// budget from §5.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("gateway.transcription.duration",
		metric.WithDescription("Latency of the batch transcription adapter."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("gateway.llm.duration",
		metric.WithDescription("Latency of LLM calls (cleaning and extraction)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractDuration, err = m.Float64Histogram("gateway.extract.duration",
		metric.WithDescription("End-to-end latency of structured intelligence extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PublishDuration, err = m.Float64Histogram("gateway.publish.duration",
		metric.WithDescription("Latency of the fan-out publisher's dual write."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("gateway.persist.duration",
		metric.WithDescription("Latency of the intelligence persist transaction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("gateway.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.UploadJobTransitions, err = m.Int64Counter("gateway.upload_job.transitions",
		metric.WithDescription("Total upload job state transitions by resulting status."),
	); err != nil {
		return nil, err
	}
	if met.InteractionsIngested, err = m.Int64Counter("gateway.interactions.ingested",
		metric.WithDescription("Total completed ingestions by interaction type."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("gateway.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("gateway.active_live_sessions",
		metric.WithDescription("Number of currently open live session WebSocket connections."),
	); err != nil {
		return nil, err
	}
	if met.PendingUploadJobs, err = m.Int64UpDownCounter("gateway.upload_jobs.pending",
		metric.WithDescription("Number of upload jobs currently queued or processing."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("gateway.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordUploadJobTransition is a convenience method that records an upload
// job state transition counter increment.
func (m *Metrics) RecordUploadJobTransition(ctx context.Context, status string) {
	m.UploadJobTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordInteractionIngested is a convenience method that records a completed
// ingestion counter increment.
func (m *Metrics) RecordInteractionIngested(ctx context.Context, interactionType string) {
	m.InteractionsIngested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("interaction_type", interactionType)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
