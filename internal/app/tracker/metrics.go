package tracker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/telemetry"
)

type trackerMetrics struct {
	summoner string

	detected       metric.Int64Counter
	completed      metric.Int64Counter
	anomalies      metric.Int64Counter
	persistFailure metric.Int64Counter
	restarts       metric.Int64Counter
}

func newTrackerMetrics(summoner string) *trackerMetrics {
	meter := otel.Meter("app.tracker")
	tm := &trackerMetrics{summoner: summoner}

	tm.detected, _ = meter.Int64Counter(telemetry.MetricGamesDetected,
		metric.WithDescription("Live games detected for tracked summoners"),
		metric.WithUnit("{game}"))
	tm.completed, _ = meter.Int64Counter(telemetry.MetricGamesCompleted,
		metric.WithDescription("Tracked games reconciled with a post-game result"),
		metric.WithUnit("{game}"))
	tm.anomalies, _ = meter.Int64Counter(telemetry.MetricReconciliationIssues,
		metric.WithDescription("Tracked games discarded because the result could not be reconciled"),
		metric.WithUnit("{game}"))
	tm.persistFailure, _ = meter.Int64Counter(telemetry.MetricPersistenceFailures,
		metric.WithDescription("Match rows that could not be persisted"),
		metric.WithUnit("{row}"))
	tm.restarts, _ = meter.Int64Counter(telemetry.MetricTrackerRestarts,
		metric.WithDescription("Tracker loops restarted after a panic"),
		metric.WithUnit("{restart}"))

	return tm
}

func (tm *trackerMetrics) recordDetected(ctx context.Context) {
	if tm == nil || tm.detected == nil {
		return
	}
	tm.detected.Add(ctx, 1, metric.WithAttributes(telemetry.SummonerAttributes(telemetry.Environment(), tm.summoner)...))
}

func (tm *trackerMetrics) recordCompleted(ctx context.Context, result string) {
	if tm == nil || tm.completed == nil {
		return
	}
	tm.completed.Add(ctx, 1, metric.WithAttributes(telemetry.ResultAttributes(telemetry.Environment(), tm.summoner, result)...))
}

func (tm *trackerMetrics) recordAnomaly(ctx context.Context, reason string) {
	if tm == nil || tm.anomalies == nil {
		return
	}
	tm.anomalies.Add(ctx, 1, metric.WithAttributes(telemetry.ReasonAttributes(telemetry.Environment(), tm.summoner, reason)...))
}

func (tm *trackerMetrics) recordPersistFailure(ctx context.Context, stage string) {
	if tm == nil || tm.persistFailure == nil {
		return
	}
	tm.persistFailure.Add(ctx, 1, metric.WithAttributes(telemetry.StageAttributes(telemetry.Environment(), tm.summoner, stage)...))
}

func (tm *trackerMetrics) recordRestart(ctx context.Context) {
	if tm == nil || tm.restarts == nil {
		return
	}
	tm.restarts.Add(ctx, 1, metric.WithAttributes(telemetry.SummonerAttributes(telemetry.Environment(), tm.summoner)...))
}
