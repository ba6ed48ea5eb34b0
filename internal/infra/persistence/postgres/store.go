package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence"
)

// Store exposes PostgreSQL-backed repositories sharing one pool.
type Store struct {
	*persistence.Store
	matches *MatchStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Store:   persistence.NewStore(pool),
		matches: NewMatchStore(pool),
	}
}

// Matches returns the match row repository.
func (s *Store) Matches() *MatchStore {
	return s.matches
}
