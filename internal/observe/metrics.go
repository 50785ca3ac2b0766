// Package observe provides the OpenTelemetry metrics recorded by the
// transcription pipeline and the Prometheus bridge that exposes them.
//
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] to avoid sharing global state. A nil *Metrics is
// valid and records nothing.
package observe

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName is the instrumentation scope for all metrics.
const meterName = "github.com/chaz8081/gostt-stream"

// Metrics holds the pipeline's instruments.
type Metrics struct {
	// Runs counts finished runs. Attribute "state" is completed or failed.
	Runs metric.Int64Counter

	// Segments counts segments appended to a store.
	Segments metric.Int64Counter

	// SegmentErrors counts segments dropped because their text was invalid
	// or could not be stored.
	SegmentErrors metric.Int64Counter

	// RunDuration tracks wall time from run start to finish.
	RunDuration metric.Float64Histogram

	// AudioSeconds tracks the length of decoded input audio.
	AudioSeconds metric.Float64Histogram
}

// runBuckets are sized for offline decodes of whole files (seconds).
var runBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Runs, err = m.Int64Counter("gostt.runs",
		metric.WithDescription("Finished transcription runs by final state."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("gostt.segments",
		metric.WithDescription("Recognized segments stored."),
	); err != nil {
		return nil, err
	}
	if met.SegmentErrors, err = m.Int64Counter("gostt.segment_errors",
		metric.WithDescription("Recognized segments dropped."),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("gostt.run.duration",
		metric.WithDescription("Wall time of a transcription run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Histogram("gostt.audio.seconds",
		metric.WithDescription("Length of decoded input audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RunFinished records a run's outcome and duration.
func (m *Metrics) RunFinished(ctx context.Context, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.Runs.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// SegmentStored counts one stored segment.
func (m *Metrics) SegmentStored(ctx context.Context) {
	if m == nil {
		return
	}
	m.Segments.Add(ctx, 1)
}

// SegmentDropped counts one dropped segment.
func (m *Metrics) SegmentDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SegmentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// AudioLoaded records the length of an input file.
func (m *Metrics) AudioLoaded(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.AudioSeconds.Record(ctx, seconds)
}

// Provider bundles the meter provider with its /metrics handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// InitProvider creates a meter provider backed by a Prometheus exporter.
func InitProvider() (*Provider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Provider{MeterProvider: mp, Handler: promhttp.Handler()}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}
