package riot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
)

const (
	spectatorPrefix = "/lol/spectator/v5/"
	leaguePrefix    = "/lol/league/v4/"
	matchPrefix     = "/lol/match/v5/"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointActiveGame    = "active_game"
	EndpointLeagueEntries = "league_entries"
	EndpointMatch         = "match"
)

// Fetcher is the request surface API depends on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers http.Header, params url.Values) Result
}

// API exposes the three logical endpoints the tracker consumes.
type API struct {
	fetcher      Fetcher
	platform     string
	platformBase string
	regionalBase string
}

// NewAPI binds a fetcher to the configured platform and regional hosts.
func NewAPI(fetcher Fetcher, cfg config.RiotConfig) *API {
	return &API{
		fetcher:      fetcher,
		platform:     strings.ToUpper(strings.TrimSpace(cfg.Platform)),
		platformBase: strings.TrimRight(cfg.PlatformBaseURL, "/"),
		regionalBase: strings.TrimRight(cfg.RegionalBaseURL, "/"),
	}
}

// ActiveGame returns the summoner's current game, or nil when they are not in one.
func (a *API) ActiveGame(ctx context.Context, puuid string) (*CurrentGame, error) {
	target := a.platformBase + spectatorPrefix + "active-games/by-summoner/" + url.PathEscape(puuid)
	var game CurrentGame
	found, err := a.get(ctx, target, EndpointActiveGame, &game)
	if err != nil || !found {
		return nil, err
	}
	return &game, nil
}

// RankedStanding returns the solo queue entry, or nil when the summoner is unranked.
func (a *API) RankedStanding(ctx context.Context, summoner tracking.Summoner) (*tracking.RankStanding, error) {
	var target string
	if id := strings.TrimSpace(summoner.SummonerID); id != "" {
		target = a.platformBase + leaguePrefix + "entries/by-summoner/" + url.PathEscape(id)
	} else {
		target = a.platformBase + leaguePrefix + "entries/by-puuid/" + url.PathEscape(summoner.PUUID)
	}
	var entries []tracking.RankStanding
	found, err := a.get(ctx, target, EndpointLeagueEntries, &entries)
	if err != nil || !found {
		return nil, err
	}
	for _, entry := range entries {
		if entry.QueueType == tracking.SoloQueue {
			standing := entry
			return &standing, nil
		}
	}
	return nil, nil
}

// Match returns the finished match, or nil while it is not yet published.
func (a *API) Match(ctx context.Context, matchID string) (*Match, error) {
	target := a.regionalBase + matchPrefix + "matches/" + url.PathEscape(matchID)
	var match Match
	found, err := a.get(ctx, target, EndpointMatch, &match)
	if err != nil || !found {
		return nil, err
	}
	return &match, nil
}

// MatchID builds the match-v5 identifier {PLATFORM}_{gameId}. An empty platform uses the configured one.
func (a *API) MatchID(platformID string, gameID int64) string {
	platform := strings.ToUpper(strings.TrimSpace(platformID))
	if platform == "" {
		platform = a.platform
	}
	return platform + "_" + strconv.FormatInt(gameID, 10)
}

func (a *API) get(ctx context.Context, target, endpoint string, out any) (bool, error) {
	res := a.fetcher.Fetch(ctx, target, nil, nil)
	switch res.Kind {
	case KindSuccess:
	case KindNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", endpoint, res.Error())
	}
	if err := json.Unmarshal(res.Payload, out); err != nil {
		return false, errs.New(serviceName, errs.CodeUpstream,
			errs.WithMessage("decode "+endpoint+" payload"),
			errs.WithCause(err))
	}
	return true, nil
}
