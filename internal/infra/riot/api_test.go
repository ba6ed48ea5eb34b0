package riot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
)

const (
	activeGameJSON = `{
  "gameId": 6907242392,
  "platformId": "EUW1",
  "gameMode": "CLASSIC",
  "gameType": "MATCHED",
  "gameQueueConfigId": 420,
  "gameStartTime": 1714560000000,
  "gameLength": 312,
  "participants": [{"puuid": "puuid-1", "championId": 103, "teamId": 100}]
}`
	leagueJSON = `[
  {"queueType": "RANKED_FLEX_SR", "tier": "GOLD", "rank": "I", "leaguePoints": 10, "wins": 3, "losses": 4},
  {"queueType": "RANKED_SOLO_5x5", "tier": "EMERALD", "rank": "II", "leaguePoints": 57, "wins": 40, "losses": 38}
]`
	matchJSON = `{
  "metadata": {"matchId": "EUW1_6907242392", "participants": ["a", "puuid-1", "b"]},
  "info": {
    "gameId": 6907242392,
    "platformId": "EUW1",
    "queueId": 420,
    "gameDuration": 1835,
    "participants": [
      {"puuid": "a", "championName": "Ahri", "teamId": 100, "kills": 1, "deaths": 2, "assists": 3, "win": false},
      {"puuid": "puuid-1", "championName": "Ahri", "teamId": 200, "kills": 9, "deaths": 1, "assists": 7, "win": true},
      {"puuid": "b", "championName": "Jinx", "teamId": 200, "kills": 4, "deaths": 4, "assists": 4, "win": true}
    ]
  }
}`
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *API {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sleeper := &recordingSleeper{}
	client := NewClient(Options{APIKey: "RGAPI-test", MaxAttempts: 2, Sleep: sleeper.sleep})
	return NewAPI(client, config.RiotConfig{
		Platform:        "euw1",
		PlatformBaseURL: srv.URL,
		RegionalBaseURL: srv.URL + "/",
	})
}

func TestActiveGameDecodes(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/spectator/v5/active-games/by-summoner/puuid-1", r.URL.Path)
		_, _ = w.Write([]byte(activeGameJSON))
	})

	game, err := api.ActiveGame(context.Background(), "puuid-1")
	require.NoError(t, err)
	require.NotNil(t, game)
	require.EqualValues(t, 6907242392, game.GameID)
	require.Equal(t, "EUW1", game.PlatformID)
	require.Equal(t, 420, game.GameQueueConfigID)
	require.Len(t, game.Participants, 1)
}

func TestActiveGameNotInGame(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	game, err := api.ActiveGame(context.Background(), "puuid-1")
	require.NoError(t, err)
	require.Nil(t, game)
}

func TestActiveGameAuthFailure(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := api.ActiveGame(context.Background(), "puuid-1")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeAuth))
}

func TestActiveGameMalformedPayload(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"gameId": "nope"`))
	})

	_, err := api.ActiveGame(context.Background(), "puuid-1")
	require.True(t, errs.IsCode(err, errs.CodeUpstream))
}

func TestRankedStandingSelectsSoloQueue(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/league/v4/entries/by-summoner/sid-1", r.URL.Path)
		_, _ = w.Write([]byte(leagueJSON))
	})

	standing, err := api.RankedStanding(context.Background(), tracking.Summoner{Name: "x", PUUID: "puuid-1", SummonerID: "sid-1"})
	require.NoError(t, err)
	require.Equal(t, &tracking.RankStanding{
		QueueType:    tracking.SoloQueue,
		Tier:         "EMERALD",
		Division:     "II",
		LeaguePoints: 57,
		Wins:         40,
		Losses:       38,
	}, standing)
}

func TestRankedStandingFallsBackToPUUID(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/league/v4/entries/by-puuid/puuid-1", r.URL.Path)
		_, _ = w.Write([]byte(`[{"queueType": "RANKED_FLEX_SR", "tier": "GOLD", "rank": "I"}]`))
	})

	standing, err := api.RankedStanding(context.Background(), tracking.Summoner{Name: "x", PUUID: "puuid-1"})
	require.NoError(t, err)
	require.Nil(t, standing)
}

func TestMatchDecodesAndResolves(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/match/v5/matches/EUW1_6907242392", r.URL.Path)
		_, _ = w.Write([]byte(matchJSON))
	})

	match, err := api.Match(context.Background(), api.MatchID("", 6907242392))
	require.NoError(t, err)
	require.NotNil(t, match)

	indices := tracking.ResolveIndices(match, tracking.NewIdentitySet("puuid-1"))
	require.Equal(t, map[string]int{"puuid-1": 1}, indices)

	p, ok := match.Participant(indices["puuid-1"])
	require.True(t, ok)
	require.True(t, p.Win)
	require.Equal(t, 9, p.Kills)

	_, ok = match.Participant(3)
	require.False(t, ok)
}

func TestMatchIDUsesPayloadPlatform(t *testing.T) {
	api := NewAPI(nil, config.RiotConfig{Platform: "euw1"})
	require.Equal(t, "NA1_42", api.MatchID("na1", 42))
	require.Equal(t, "EUW1_42", api.MatchID(" ", 42))
}

func TestParticipantPUUIDsFallsBackToInfo(t *testing.T) {
	m := &Match{Info: MatchInfo{Participants: []MatchParticipant{{PUUID: "x"}, {PUUID: "y"}}}}
	require.Equal(t, []string{"x", "y"}, m.ParticipantPUUIDs())
	var nilMatch *Match
	require.Nil(t, nilMatch.ParticipantPUUIDs())
}
