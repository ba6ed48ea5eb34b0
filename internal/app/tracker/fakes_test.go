package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/memory"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/riot"
)

var testSettings = Settings{
	IdleInterval:            180 * time.Second,
	InGameInterval:          60 * time.Second,
	Cooldown:                4 * time.Minute,
	ResultFetchAttempts:     3,
	ResultRetryInterval:     60 * time.Second,
	PostGamePersistAttempts: 3,
	PersistRetryInterval:    2 * time.Second,
	RankCacheTTL:            30 * time.Second,
}

var selenia = tracking.Summoner{Name: "Seleniá", PUUID: "puuid-selenia", SummonerID: "sid-selenia"}

// eventLog is an ordered record of upstream and store calls.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeClock advances only when the tracker sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type activeReply struct {
	game *riot.CurrentGame
	err  error
}

func inGame(gameID int64) activeReply {
	return activeReply{game: &riot.CurrentGame{GameID: gameID, PlatformID: "EUW1", GameQueueConfigID: 420, GameStartTime: 1714560000000}}
}

func notInGame() activeReply { return activeReply{} }

// scriptedUpstream replays ActiveGame replies in order and cancels the run once they run out.
type scriptedUpstream struct {
	log    *eventLog
	cancel context.CancelFunc

	mu          sync.Mutex
	active      []activeReply
	activeCalls int
	rankCalls   int
	rankErr     error
	matches     map[string]*riot.Match
	matchErr    error
	matchCalls  map[string]int
}

func newScriptedUpstream(log *eventLog, cancel context.CancelFunc, replies ...activeReply) *scriptedUpstream {
	return &scriptedUpstream{
		log:        log,
		cancel:     cancel,
		active:     replies,
		matches:    make(map[string]*riot.Match),
		matchCalls: make(map[string]int),
	}
}

func (u *scriptedUpstream) ActiveGame(ctx context.Context, puuid string) (*riot.CurrentGame, error) {
	u.mu.Lock()
	n := u.activeCalls
	u.activeCalls++
	u.mu.Unlock()
	u.log.add("active")
	if n >= len(u.active) {
		u.cancel()
		return nil, context.Canceled
	}
	reply := u.active[n]
	return reply.game, reply.err
}

func (u *scriptedUpstream) RankedStanding(context.Context, tracking.Summoner) (*tracking.RankStanding, error) {
	u.mu.Lock()
	n := u.rankCalls
	u.rankCalls++
	err := u.rankErr
	u.mu.Unlock()
	u.log.add("rank")
	if err != nil {
		return nil, err
	}
	return &tracking.RankStanding{QueueType: tracking.SoloQueue, Tier: "GOLD", Division: "II", LeaguePoints: 10 * n}, nil
}

func (u *scriptedUpstream) Match(_ context.Context, matchID string) (*riot.Match, error) {
	u.mu.Lock()
	u.matchCalls[matchID]++
	m, err := u.matches[matchID], u.matchErr
	u.mu.Unlock()
	u.log.add("match:%s", matchID)
	return m, err
}

func (u *scriptedUpstream) MatchID(platformID string, gameID int64) string {
	if platformID == "" {
		platformID = "EUW1"
	}
	return fmt.Sprintf("%s_%d", platformID, gameID)
}

func (u *scriptedUpstream) calls() (active, rank int, matches map[string]int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]int, len(u.matchCalls))
	for k, v := range u.matchCalls {
		out[k] = v
	}
	return u.activeCalls, u.rankCalls, out
}

// matchWith builds a ten-player match placing puuid at index.
func matchWith(gameID int64, puuid string, index int, win bool) *riot.Match {
	m := &riot.Match{}
	m.Metadata.MatchID = fmt.Sprintf("EUW1_%d", gameID)
	m.Info.GameID = gameID
	m.Info.PlatformID = "EUW1"
	m.Info.GameDuration = 1835
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("stranger-%d", i)
		p := riot.MatchParticipant{PUUID: id, ChampionName: "Garen", TeamID: 100, Win: !win}
		if i == index {
			p = riot.MatchParticipant{PUUID: puuid, ChampionName: "Ahri", TeamID: 200, Kills: 9, Deaths: 1, Assists: 7, Win: win}
		}
		m.Metadata.Participants = append(m.Metadata.Participants, p.PUUID)
		m.Info.Participants = append(m.Info.Participants, p)
	}
	return m
}

// recordingStore wraps the memory store, logging calls and injecting failures.
type recordingStore struct {
	*memory.MatchStore
	log *eventLog

	mu        sync.Mutex
	preCalls  int
	postCalls int
	preErr    func(n int) error
	postErr   func(n int) error
}

func newRecordingStore(log *eventLog) *recordingStore {
	return &recordingStore{MatchStore: memory.NewMatchStore(), log: log}
}

func (s *recordingStore) UpsertPreGame(ctx context.Context, record matchstore.PreGameRecord) error {
	s.mu.Lock()
	n := s.preCalls
	s.preCalls++
	inject := s.preErr
	s.mu.Unlock()
	s.log.add("upsert_pre:%d", record.GameID)
	if inject != nil {
		if err := inject(n); err != nil {
			return err
		}
	}
	return s.MatchStore.UpsertPreGame(ctx, record)
}

func (s *recordingStore) UpsertPostGame(ctx context.Context, record matchstore.PostGameRecord) error {
	s.mu.Lock()
	n := s.postCalls
	s.postCalls++
	inject := s.postErr
	s.mu.Unlock()
	s.log.add("upsert_post:%d", record.GameID)
	if inject != nil {
		if err := inject(n); err != nil {
			return err
		}
	}
	return s.MatchStore.UpsertPostGame(ctx, record)
}

func (s *recordingStore) counts() (pre, post int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preCalls, s.postCalls
}

func authError() error {
	return errs.New("riot", errs.CodeAuth, errs.WithHTTP(403))
}
