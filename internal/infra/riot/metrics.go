package riot

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/telemetry"
)

type clientMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newClientMetrics() *clientMetrics {
	meter := otel.Meter("riot.client")
	cm := &clientMetrics{requests: nil, duration: nil}

	cm.requests, _ = meter.Int64Counter(telemetry.MetricUpstreamRequests,
		metric.WithDescription("Riot API HTTP exchanges by endpoint and status"),
		metric.WithUnit("{request}"))

	cm.duration, _ = meter.Float64Histogram(telemetry.MetricUpstreamDuration,
		metric.WithDescription("Riot API request latency"),
		metric.WithUnit("ms"))

	return cm
}

func (cm *clientMetrics) record(ctx context.Context, endpoint, status string, elapsed time.Duration) {
	if cm == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := metric.WithAttributes(telemetry.UpstreamAttributes(telemetry.Environment(), endpoint, status)...)
	if cm.requests != nil {
		cm.requests.Add(ctx, 1, attrs)
	}
	if cm.duration != nil {
		cm.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}
