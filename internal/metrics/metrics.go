// Package metrics records generation metrics with OpenTelemetry and
// optionally exports them to an OTLP collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/berth-dev/clipforge/internal/config"
)

const (
	serviceName    = "clipforge"
	serviceVersion = "1.0.0"
)

// Recorder holds the instruments. A nil *Recorder records nothing, so
// callers never need to check whether metrics are enabled.
type Recorder struct {
	submitted    metric.Int64Counter
	completed    metric.Int64Counter
	failed       metric.Int64Counter
	fallbacks    metric.Int64Counter
	cost         metric.Float64Counter
	segmentTime  metric.Float64Histogram
	phaseTime    metric.Float64Histogram
	sessionsDone metric.Int64Counter
}

// NewRecorder creates the instruments on provider.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(serviceName)
	r := &Recorder{}
	var err error

	if r.submitted, err = meter.Int64Counter(
		"clipforge_segments_submitted_total",
		metric.WithDescription("Segments submitted to a platform"),
		metric.WithUnit("{segment}"),
	); err != nil {
		return nil, fmt.Errorf("creating submitted counter: %w", err)
	}
	if r.completed, err = meter.Int64Counter(
		"clipforge_segments_completed_total",
		metric.WithDescription("Segments downloaded successfully"),
		metric.WithUnit("{segment}"),
	); err != nil {
		return nil, fmt.Errorf("creating completed counter: %w", err)
	}
	if r.failed, err = meter.Int64Counter(
		"clipforge_segments_failed_total",
		metric.WithDescription("Segment attempts that ended Failed"),
		metric.WithUnit("{segment}"),
	); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if r.fallbacks, err = meter.Int64Counter(
		"clipforge_segment_fallbacks_total",
		metric.WithDescription("Segments handed to a fallback platform"),
		metric.WithUnit("{segment}"),
	); err != nil {
		return nil, fmt.Errorf("creating fallback counter: %w", err)
	}
	if r.cost, err = meter.Float64Counter(
		"clipforge_generation_cost",
		metric.WithDescription("Estimated cost of completed segments"),
	); err != nil {
		return nil, fmt.Errorf("creating cost counter: %w", err)
	}
	if r.segmentTime, err = meter.Float64Histogram(
		"clipforge_segment_duration_seconds",
		metric.WithDescription("Time from submission to completion"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating segment histogram: %w", err)
	}
	if r.phaseTime, err = meter.Float64Histogram(
		"clipforge_phase_duration_seconds",
		metric.WithDescription("Wall time per pipeline phase"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating phase histogram: %w", err)
	}
	if r.sessionsDone, err = meter.Int64Counter(
		"clipforge_sessions_total",
		metric.WithDescription("Runs finished, by outcome"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}
	return r, nil
}

func platformAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("platform", name))
}

// SegmentSubmitted counts one successful submission.
func (r *Recorder) SegmentSubmitted(ctx context.Context, platform string) {
	if r == nil {
		return
	}
	r.submitted.Add(ctx, 1, platformAttr(platform))
}

// SegmentCompleted counts a completed segment with its cost and latency.
func (r *Recorder) SegmentCompleted(ctx context.Context, platform string, cost float64, elapsed time.Duration) {
	if r == nil {
		return
	}
	opt := platformAttr(platform)
	r.completed.Add(ctx, 1, opt)
	r.cost.Add(ctx, cost, opt)
	r.segmentTime.Record(ctx, elapsed.Seconds(), opt)
}

// SegmentFailed counts a failed attempt.
func (r *Recorder) SegmentFailed(ctx context.Context, platform string) {
	if r == nil {
		return
	}
	r.failed.Add(ctx, 1, platformAttr(platform))
}

// Fallback counts a hand-off between platforms.
func (r *Recorder) Fallback(ctx context.Context, from, to string) {
	if r == nil {
		return
	}
	r.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// PhaseFinished records the wall time of one executed phase.
func (r *Recorder) PhaseFinished(ctx context.Context, phase string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.phaseTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

// SessionFinished counts a run by outcome ("completed", "incomplete", "error").
func (r *Recorder) SessionFinished(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.sessionsDone.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Exporter owns an OTLP meter provider and the Recorder bound to it.
type Exporter struct {
	provider *sdkmetric.MeterProvider
	Recorder *Recorder
}

// NewExporter connects to the OTLP gRPC endpoint from cfg. When metrics are
// disabled it returns an Exporter with a nil Recorder and nothing to close.
func NewExporter(ctx context.Context, cfg config.MetricsConfig) (*Exporter, error) {
	if !cfg.Enabled {
		return &Exporter{}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("metrics enabled but endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)

	rec, err := NewRecorder(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return &Exporter{provider: provider, Recorder: rec}, nil
}

// Close flushes pending metrics and shuts down the provider.
func (e *Exporter) Close(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
