// Package memory provides an in-process match store for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
)

type key struct {
	gameID int64
	puuid  string
}

// MatchStore keeps match rows in a map with the same upsert semantics as the PostgreSQL store.
type MatchStore struct {
	mu    sync.RWMutex
	rows  map[key]matchstore.Record
	clock func() time.Time
}

var _ matchstore.Store = (*MatchStore)(nil)

// NewMatchStore constructs an empty store.
func NewMatchStore() *MatchStore {
	return &MatchStore{
		mu:    sync.RWMutex{},
		rows:  make(map[key]matchstore.Record),
		clock: time.Now,
	}
}

// UpsertPreGame inserts or refreshes the start timestamp and pre-game payload.
func (s *MatchStore) UpsertPreGame(ctx context.Context, record matchstore.PreGameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := newKey(record.GameID, record.PUUID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal pre-game payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rowLocked(k)
	if record.StartTimestamp.IsZero() {
		row.StartTimestamp = nil
	} else {
		ts := record.StartTimestamp.UTC()
		row.StartTimestamp = &ts
	}
	row.PreGame = payload
	row.UpdatedAt = s.clock().UTC()
	s.rows[k] = row
	return nil
}

// UpsertPostGame inserts or refreshes the result and post-game payload.
func (s *MatchStore) UpsertPostGame(ctx context.Context, record matchstore.PostGameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := newKey(record.GameID, record.PUUID)
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

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rowLocked(k)
	row.Result = result
	row.PostGame = payload
	row.UpdatedAt = s.clock().UTC()
	s.rows[k] = row
	return nil
}

// LoadMatch returns a copy of one row.
func (s *MatchStore) LoadMatch(ctx context.Context, gameID int64, puuid string) (matchstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return matchstore.Record{}, err
	}
	k, err := newKey(gameID, puuid)
	if err != nil {
		return matchstore.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[k]
	if !ok {
		return matchstore.Record{}, matchstore.ErrNotFound
	}
	return cloneRecord(row), nil
}

// Len returns the number of stored rows.
func (s *MatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MatchStore) rowLocked(k key) matchstore.Record {
	row, ok := s.rows[k]
	if !ok {
		row = matchstore.Record{GameID: k.gameID, PUUID: k.puuid, Result: tracking.ResultUnknown}
	}
	return row
}

func newKey(gameID int64, puuid string) (key, error) {
	if gameID <= 0 {
		return key{}, fmt.Errorf("match store: game id required")
	}
	trimmed := strings.TrimSpace(puuid)
	if trimmed == "" {
		return key{}, fmt.Errorf("match store: summoner puuid required")
	}
	return key{gameID: gameID, puuid: trimmed}, nil
}

func cloneRecord(row matchstore.Record) matchstore.Record {
	out := row
	if row.StartTimestamp != nil {
		ts := *row.StartTimestamp
		out.StartTimestamp = &ts
	}
	out.PreGame = append([]byte(nil), row.PreGame...)
	out.PostGame = append([]byte(nil), row.PostGame...)
	return out
}
