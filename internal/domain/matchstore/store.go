// Package matchstore defines persistence contracts for tracked match rows.
package matchstore

import (
	"context"
	"errors"
	"time"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
)

// ErrNotFound is returned by LoadMatch when no row exists for the key.
var ErrNotFound = errors.New("matchstore: record not found")

// PreGameRecord is the pre-game half of a persisted match row.
type PreGameRecord struct {
	GameID         int64
	PUUID          string
	StartTimestamp time.Time
	Payload        tracking.PreGameSnapshot
}

// PostGameRecord is the post-game half of a persisted match row.
type PostGameRecord struct {
	GameID  int64
	PUUID   string
	Result  tracking.MatchResult
	Payload tracking.PostGameSnapshot
}

// Record is one persisted row keyed by (GameID, PUUID). Payloads hold the serialized JSON.
type Record struct {
	GameID         int64
	PUUID          string
	StartTimestamp *time.Time
	PreGame        []byte
	Result         tracking.MatchResult
	PostGame       []byte
	UpdatedAt      time.Time
}

// Store abstracts idempotent upserts of match rows keyed by (game id, summoner puuid).
type Store interface {
	UpsertPreGame(ctx context.Context, record PreGameRecord) error
	UpsertPostGame(ctx context.Context, record PostGameRecord) error
	LoadMatch(ctx context.Context, gameID int64, puuid string) (Record, error)
}
