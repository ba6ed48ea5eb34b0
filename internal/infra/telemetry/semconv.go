package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by tracker metrics.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrEndpoint names the logical upstream endpoint (active_game, league_entries, match).
	AttrEndpoint = attribute.Key("endpoint")
	// AttrStatus records the HTTP status code, or "error" for transport failures.
	AttrStatus = attribute.Key("status")
	// AttrSummoner names the tracked summoner.
	AttrSummoner = attribute.Key("summoner")
	// AttrResult records a game outcome or operation result.
	AttrResult = attribute.Key("result")
	// AttrReason provides context for reconciliation anomalies.
	AttrReason = attribute.Key("reason")
	// AttrStage distinguishes pre-game and post-game persistence.
	AttrStage = attribute.Key("stage")
	// AttrPoolName labels connection pool gauges.
	AttrPoolName = attribute.Key("pool.name")
	// AttrDirection labels migration runs (up/down).
	AttrDirection = attribute.Key("direction")
)

// Metric names.
const (
	MetricUpstreamRequests     = "lol_upstream_requests_total"
	MetricUpstreamDuration     = "lol_upstream_request_duration"
	MetricGamesDetected        = "lol_games_detected_total"
	MetricGamesCompleted       = "lol_games_completed_total"
	MetricReconciliationIssues = "lol_reconciliation_anomalies_total"
	MetricPersistenceFailures  = "lol_persistence_failures_total"
	MetricTrackerRestarts      = "lol_tracker_restarts_total"
)

// Persistence stage values.
const (
	StagePreGame  = "pre_game"
	StagePostGame = "post_game"
)

// UpstreamAttributes returns attributes for upstream request metrics.
func UpstreamAttributes(environment, endpoint, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrEndpoint.String(endpoint),
		AttrStatus.String(status),
	}
}

// SummonerAttributes returns attributes for per-summoner tracker metrics.
func SummonerAttributes(environment, summoner string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrSummoner.String(summoner),
	}
}

// ResultAttributes extends the summoner attributes with a game result.
func ResultAttributes(environment, summoner, result string) []attribute.KeyValue {
	return append(SummonerAttributes(environment, summoner), AttrResult.String(result))
}

// ReasonAttributes extends the summoner attributes with an anomaly reason.
func ReasonAttributes(environment, summoner, reason string) []attribute.KeyValue {
	return append(SummonerAttributes(environment, summoner), AttrReason.String(reason))
}

// StageAttributes extends the summoner attributes with a persistence stage.
func StageAttributes(environment, summoner, stage string) []attribute.KeyValue {
	return append(SummonerAttributes(environment, summoner), AttrStage.String(stage))
}

// PoolAttributes returns attributes for connection pool gauges.
func PoolAttributes(environment, poolName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrPoolName.String(poolName),
	}
}
