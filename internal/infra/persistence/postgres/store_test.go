package postgres

import (
	"context"
	"testing"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
)

func TestNewStoreAllowsNilPool(t *testing.T) {
	store := New(nil)
	if store == nil {
		t.Fatalf("expected store instance")
	}
	if store.Pool() != nil {
		t.Fatalf("expected nil pool passthrough")
	}
	if store.Matches() == nil {
		t.Fatalf("expected match repository")
	}
}

func TestMatchStoreRequiresPool(t *testing.T) {
	store := NewMatchStore(nil)
	ctx := context.Background()

	if err := store.UpsertPreGame(ctx, matchstore.PreGameRecord{GameID: 1, PUUID: "p"}); err == nil {
		t.Fatalf("expected error for nil pool on pre-game upsert")
	}
	if err := store.UpsertPostGame(ctx, matchstore.PostGameRecord{GameID: 1, PUUID: "p"}); err == nil {
		t.Fatalf("expected error for nil pool on post-game upsert")
	}
	if _, err := store.LoadMatch(ctx, 1, "p"); err == nil {
		t.Fatalf("expected error for nil pool on load")
	}
}

func TestValidateKey(t *testing.T) {
	if _, err := validateKey(0, "p"); err == nil {
		t.Fatalf("expected error for zero game id")
	}
	if _, err := validateKey(7, "   "); err == nil {
		t.Fatalf("expected error for blank puuid")
	}
	got, err := validateKey(7, " p ")
	if err != nil || got != "p" {
		t.Fatalf("expected trimmed puuid, got %q %v", got, err)
	}
}
