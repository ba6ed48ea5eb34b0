package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
)

// MatchStore persists tracked match rows in PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore constructs a MatchStore backed by the provided pgx pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

var _ matchstore.Store = (*MatchStore)(nil)

const (
	preGameUpsertSQL = `
INSERT INTO summoner_matches (
    game_id,
    summoner_puuid,
    start_timestamp,
    pre_game_data,
    updated_at
)
VALUES ($1, $2, $3, $4::jsonb, NOW())
ON CONFLICT (game_id, summoner_puuid) DO UPDATE SET
    start_timestamp = EXCLUDED.start_timestamp,
    pre_game_data = EXCLUDED.pre_game_data,
    updated_at = NOW();
`
	postGameUpsertSQL = `
INSERT INTO summoner_matches (
    game_id,
    summoner_puuid,
    result,
    post_game_data,
    updated_at
)
VALUES ($1, $2, $3, $4::jsonb, NOW())
ON CONFLICT (game_id, summoner_puuid) DO UPDATE SET
    result = EXCLUDED.result,
    post_game_data = EXCLUDED.post_game_data,
    updated_at = NOW();
`
	matchSelectSQL = `
SELECT game_id, summoner_puuid, start_timestamp, pre_game_data, result, post_game_data, updated_at
FROM summoner_matches
WHERE game_id = $1 AND summoner_puuid = $2;
`
)

// UpsertPreGame inserts or refreshes the start timestamp and pre-game payload.
func (s *MatchStore) UpsertPreGame(ctx context.Context, record matchstore.PreGameRecord) error {
	if s.pool == nil {
		return fmt.Errorf("match store: nil pool")
	}
	puuid, err := validateKey(record.GameID, record.PUUID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal pre-game payload: %w", err)
	}
	var start *time.Time
	if !record.StartTimestamp.IsZero() {
		ts := record.StartTimestamp.UTC()
		start = &ts
	}
	if _, err := s.pool.Exec(ctx, preGameUpsertSQL, record.GameID, puuid, start, payload); err != nil {
		return fmt.Errorf("upsert pre-game: %w", err)
	}
	return nil
}

// UpsertPostGame inserts or refreshes the result and post-game payload.
func (s *MatchStore) UpsertPostGame(ctx context.Context, record matchstore.PostGameRecord) error {
	if s.pool == nil {
		return fmt.Errorf("match store: nil pool")
	}
	puuid, err := validateKey(record.GameID, record.PUUID)
	if err != nil {
		return err
	}
	result := record.Result
	if result == "" {
		result = tracking.ResultUnknown
	}
	if !result.Valid() {
		return fmt.Errorf("match store: invalid result %q", result)
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal post-game payload: %w", err)
	}
	if _, err := s.pool.Exec(ctx, postGameUpsertSQL, record.GameID, puuid, string(result), payload); err != nil {
		return fmt.Errorf("upsert post-game: %w", err)
	}
	return nil
}

// LoadMatch reads back one row.
func (s *MatchStore) LoadMatch(ctx context.Context, gameID int64, puuid string) (matchstore.Record, error) {
	if s.pool == nil {
		return matchstore.Record{}, fmt.Errorf("match store: nil pool")
	}
	trimmed, err := validateKey(gameID, puuid)
	if err != nil {
		return matchstore.Record{}, err
	}
	var (
		record matchstore.Record
		result string
	)
	row := s.pool.QueryRow(ctx, matchSelectSQL, gameID, trimmed)
	if err := row.Scan(&record.GameID, &record.PUUID, &record.StartTimestamp, &record.PreGame, &result, &record.PostGame, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return matchstore.Record{}, matchstore.ErrNotFound
		}
		return matchstore.Record{}, fmt.Errorf("select match: %w", err)
	}
	record.Result = tracking.MatchResult(result)
	return record, nil
}

func validateKey(gameID int64, puuid string) (string, error) {
	if gameID <= 0 {
		return "", fmt.Errorf("match store: game id required")
	}
	trimmed := strings.TrimSpace(puuid)
	if trimmed == "" {
		return "", fmt.Errorf("match store: summoner puuid required")
	}
	return trimmed, nil
}
