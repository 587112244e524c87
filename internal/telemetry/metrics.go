package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsSink reports stage executions to an OpenTelemetry meter. Without a
// configured meter provider the global no-op provider is used.
type MetricsSink struct {
	executions metric.Int64Counter
	latency    metric.Float64Histogram
}

// NewMetricsSink registers the stage instruments on meter. A nil meter means
// the global provider.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("tengine/stage")
	}
	executions, err := meter.Int64Counter("tengine.stage.executions",
		metric.WithDescription("Stage executions, including replays"))
	if err != nil {
		return nil, fmt.Errorf("creating executions counter: %w", err)
	}
	latency, err := meter.Float64Histogram("tengine.stage.latency_ms",
		metric.WithDescription("Stage execution latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}
	return &MetricsSink{executions: executions, latency: latency}, nil
}

func (s *MetricsSink) Emit(ctx context.Context, e Event) error {
	attrs := metric.WithAttributes(
		attribute.String("tengine.stage", e.Stage),
		attribute.Bool("tengine.replay", e.IsReplay()),
	)
	s.executions.Add(ctx, 1, attrs)
	s.latency.Record(ctx, float64(e.LatencyMs), attrs)
	return nil
}
