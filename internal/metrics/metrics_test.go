package metrics

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/berth-dev/clipforge/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s data = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorderCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := NewRecorder(provider)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	ctx := context.Background()
	rec.SegmentSubmitted(ctx, "jimeng")
	rec.SegmentSubmitted(ctx, "jimeng")
	rec.SegmentFailed(ctx, "jimeng")
	rec.Fallback(ctx, "jimeng", "sora2")
	rec.SegmentSubmitted(ctx, "sora2")
	rec.SegmentCompleted(ctx, "sora2", 300, 42*time.Second)

	got := collect(t, reader)
	if n := sumInt(t, got["clipforge_segments_submitted_total"]); n != 3 {
		t.Errorf("submitted = %d, want 3", n)
	}
	if n := sumInt(t, got["clipforge_segments_failed_total"]); n != 1 {
		t.Errorf("failed = %d, want 1", n)
	}
	if n := sumInt(t, got["clipforge_segment_fallbacks_total"]); n != 1 {
		t.Errorf("fallbacks = %d, want 1", n)
	}
	cost, ok := got["clipforge_generation_cost"].Data.(metricdata.Sum[float64])
	if !ok || len(cost.DataPoints) != 1 || cost.DataPoints[0].Value != 300 {
		t.Errorf("cost = %+v, want one point of 300", got["clipforge_generation_cost"].Data)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	ctx := context.Background()
	rec.SegmentSubmitted(ctx, "jimeng")
	rec.SegmentCompleted(ctx, "jimeng", 1, time.Second)
	rec.SegmentFailed(ctx, "jimeng")
	rec.Fallback(ctx, "a", "b")
	rec.PhaseFinished(ctx, "generation", time.Second)
	rec.SessionFinished(ctx, "completed")
}

func TestDisabledExporter(t *testing.T) {
	exp, err := NewExporter(context.Background(), config.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	if exp.Recorder != nil {
		t.Error("Recorder != nil for disabled metrics")
	}
	if err := exp.Close(context.Background()); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}
