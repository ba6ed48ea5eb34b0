// Package tracking defines the value types of the live-match tracker: summoner
// identities, ranked standings, game snapshots and the participant resolver.
package tracking

import "strings"

// Summoner identifies a tracked player. Values are loaded from configuration and never mutated.
type Summoner struct {
	Name       string
	PUUID      string
	SummonerID string
	AccountID  string
}

// Valid reports whether the identity carries the fields the tracker relies on.
func (s Summoner) Valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.PUUID) != ""
}

// IdentitySet is a set of PUUIDs considered known to the resolver.
type IdentitySet map[string]struct{}

// NewIdentitySet builds a set from the provided PUUIDs, skipping blanks.
func NewIdentitySet(puuids ...string) IdentitySet {
	set := make(IdentitySet, len(puuids))
	for _, id := range puuids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return set
}

// Contains reports whether the PUUID is part of the set.
func (s IdentitySet) Contains(puuid string) bool {
	_, ok := s[puuid]
	return ok
}

// RankStanding captures a summoner's ranked-queue position at a point in time.
type RankStanding struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Division     string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// SoloQueue is the queue type used for ranked standings.
const SoloQueue = "RANKED_SOLO_5x5"
