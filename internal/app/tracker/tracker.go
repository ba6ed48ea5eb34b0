// Package tracker runs the per-summoner live-match state machine and the
// supervisor that fans trackers out across the configured summoners.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/logging"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/riot"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/telemetry"
)

const serviceName = "tracker"

// Anomaly reasons reported when a finished game cannot be reconciled.
const (
	ReasonMatchUnavailable    = "match_unavailable"
	ReasonParticipantMissing  = "participant_not_found"
	ReasonParticipantMismatch = "participant_out_of_range"
)

const opRankedStanding = "ranked_standing"

// Upstream is the subset of the Riot API the tracker consumes.
type Upstream interface {
	ActiveGame(ctx context.Context, puuid string) (*riot.CurrentGame, error)
	RankedStanding(ctx context.Context, summoner tracking.Summoner) (*tracking.RankStanding, error)
	Match(ctx context.Context, matchID string) (*riot.Match, error)
	MatchID(platformID string, gameID int64) string
}

// Phase names a state of the tracker loop.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePreGame  Phase = "tracking_pre_game"
	PhasePostGame Phase = "tracking_post_game"
	// PhaseHalted is terminal: the tracker stopped on an authentication failure.
	PhaseHalted Phase = "halted"
)

// Settings controls polling cadence and retry budgets.
type Settings struct {
	IdleInterval            time.Duration
	InGameInterval          time.Duration
	Cooldown                time.Duration
	ResultFetchAttempts     int
	ResultRetryInterval     time.Duration
	PostGamePersistAttempts int
	PersistRetryInterval    time.Duration
	RankCacheTTL            time.Duration
}

// SettingsFromConfig maps the tracking configuration section onto tracker settings.
func SettingsFromConfig(cfg config.TrackingConfig) Settings {
	return Settings{
		IdleInterval:            cfg.IdleInterval,
		InGameInterval:          cfg.InGameInterval,
		Cooldown:                cfg.Cooldown,
		ResultFetchAttempts:     cfg.ResultFetchAttempts,
		ResultRetryInterval:     cfg.ResultRetryInterval,
		PostGamePersistAttempts: cfg.PostGamePersistAttempts,
		PersistRetryInterval:    0,
		RankCacheTTL:            cfg.RankCacheTTL,
	}
}

func (s Settings) withDefaults() Settings {
	if s.IdleInterval <= 0 {
		s.IdleInterval = 180 * time.Second
	}
	if s.InGameInterval <= 0 {
		s.InGameInterval = 60 * time.Second
	}
	if s.Cooldown < 0 {
		s.Cooldown = 0
	}
	if s.ResultFetchAttempts <= 0 {
		s.ResultFetchAttempts = 3
	}
	if s.ResultRetryInterval <= 0 {
		s.ResultRetryInterval = 60 * time.Second
	}
	if s.PostGamePersistAttempts < 2 {
		s.PostGamePersistAttempts = 2
	}
	if s.PersistRetryInterval <= 0 {
		s.PersistRetryInterval = 2 * time.Second
	}
	if s.RankCacheTTL >= s.InGameInterval {
		s.RankCacheTTL = s.InGameInterval / 2
	}
	return s
}

// Status is a read-only snapshot of one tracker, published after every step.
type Status struct {
	Summoner       string     `json:"summoner"`
	PUUID          string     `json:"puuid"`
	Phase          Phase      `json:"phase"`
	GameID         int64      `json:"gameId,omitempty"`
	CaptureID      string     `json:"captureId,omitempty"`
	LastPoll       *time.Time `json:"lastPoll,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	GamesCompleted int        `json:"gamesCompleted"`
	Anomalies      int        `json:"anomalies"`
	Restarts       int        `json:"restarts"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// state is the immutable value threaded through the loop. game is nil exactly when phase is idle.
type state struct {
	phase Phase
	game  *tracking.GameState
	wait  time.Duration
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithLogger sets the base logger; the summoner field is added automatically.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSleeper replaces the context-aware wait used between polls and retries.
func WithSleeper(sleep riot.Sleeper) Option {
	return func(t *Tracker) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// WithClock replaces the wall clock used for snapshots and the rank cache.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// Tracker owns the live-match loop of one summoner.
type Tracker struct {
	summoner tracking.Summoner
	upstream Upstream
	store    matchstore.Store
	known    tracking.IdentitySet
	settings Settings

	logger  *zap.Logger
	sleep   riot.Sleeper
	clock   func() time.Time
	metrics *trackerMetrics

	// Owned by the goroutine running Run; published through status.
	lastPoll       time.Time
	lastErr        error
	gamesCompleted int
	anomalies      int
	restarts       int

	status atomic.Pointer[Status]
}

// New constructs a tracker for one summoner. known is the resolver's identity set.
func New(summoner tracking.Summoner, upstream Upstream, store matchstore.Store, known tracking.IdentitySet, settings Settings, opts ...Option) (*Tracker, error) {
	if !summoner.Valid() {
		return nil, errs.New(serviceName, errs.CodeInvalid, errs.WithMessage("summoner name and puuid required"))
	}
	if upstream == nil {
		return nil, errs.New(serviceName, errs.CodeInvalid, errs.WithMessage("upstream required"))
	}
	if store == nil {
		return nil, errs.New(serviceName, errs.CodeInvalid, errs.WithMessage("match store required"))
	}
	if known == nil {
		known = tracking.NewIdentitySet()
	}
	if !known.Contains(summoner.PUUID) {
		merged := tracking.NewIdentitySet(summoner.PUUID)
		for id := range known {
			merged[id] = struct{}{}
		}
		known = merged
	}

	t := &Tracker{
		summoner: summoner,
		upstream: upstream,
		store:    store,
		known:    known,
		settings: settings.withDefaults(),
		logger:   zap.NewNop(),
		sleep:    riot.SleepContext,
		clock:    time.Now,
		metrics:  newTrackerMetrics(summoner.Name),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.logger = logging.Summoner(t.logger, summoner.Name).With(zap.String("puuid", summoner.PUUID))
	t.publish(state{phase: PhaseIdle})
	return t, nil
}

// Summoner returns the tracked identity.
func (t *Tracker) Summoner() tracking.Summoner { return t.summoner }

// Status returns the latest published snapshot.
func (t *Tracker) Status() Status {
	if s := t.status.Load(); s != nil {
		return *s
	}
	return Status{Summoner: t.summoner.Name, PUUID: t.summoner.PUUID, Phase: PhaseIdle}
}

// Run drives the state machine until ctx is cancelled (returns nil) or an authentication
// failure halts the tracker (returns an *errs.E with CodeAuth). Every restart begins idle.
func (t *Tracker) Run(ctx context.Context) error {
	ranks := newTTLCache[cacheKey, *tracking.RankStanding](t.settings.RankCacheTTL, t.clock)
	st := state{phase: PhaseIdle}
	t.publish(st)
	t.logger.Info("tracker started")

	for {
		if st.wait > 0 {
			if err := t.sleep(ctx, st.wait); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		next, err := t.step(ctx, st, ranks)
		if err != nil {
			t.lastErr = err
			t.publish(state{phase: PhaseHalted, game: st.game})
			t.logger.Error("tracker halted", zap.Error(err))
			return err
		}
		if next.phase != st.phase {
			fields := []zap.Field{zap.String("from", string(st.phase)), zap.String("to", string(next.phase))}
			t.logger.Info("tracker transition", append(fields, gameFields(next.game)...)...)
		}
		st = next
		t.publish(st)
	}

	t.logger.Info("tracker stopped", zap.String("phase", string(st.phase)))
	return nil
}

func (t *Tracker) step(ctx context.Context, st state, ranks *ttlCache[cacheKey, *tracking.RankStanding]) (state, error) {
	switch st.phase {
	case PhaseIdle:
		return t.detect(ctx, st, ranks)
	case PhasePreGame:
		return t.awaitEnd(ctx, st)
	case PhasePostGame:
		return t.resolve(ctx, st, ranks)
	default:
		return st, fmt.Errorf("tracker: unexpected phase %q", st.phase)
	}
}

// detect polls for an active game and, on a hit, captures and persists the pre-game snapshot.
func (t *Tracker) detect(ctx context.Context, st state, ranks *ttlCache[cacheKey, *tracking.RankStanding]) (state, error) {
	game, err := t.upstream.ActiveGame(ctx, t.summoner.PUUID)
	t.lastPoll = t.clock()
	if err != nil {
		if errs.Terminal(err) {
			return st, err
		}
		t.noteFailure("status poll failed", err)
		return state{phase: PhaseIdle, wait: t.settings.IdleInterval}, nil
	}
	t.lastErr = nil
	if game == nil {
		return state{phase: PhaseIdle, wait: t.settings.IdleInterval}, nil
	}

	rank, err := t.rankedStanding(ctx, ranks)
	if err != nil {
		if errs.Terminal(err) {
			return st, err
		}
		t.noteFailure("pre-game rank fetch failed", err)
	}

	pre := tracking.PreGameSnapshot{
		GameID:        game.GameID,
		PlatformID:    game.PlatformID,
		QueueID:       game.GameQueueConfigID,
		GameStartTime: game.GameStartTime,
		CapturedAt:    t.clock().UTC(),
		Rank:          rank,
	}
	gs := tracking.NewGameState(t.summoner, pre)
	t.metrics.recordDetected(ctx)
	t.logger.Info("game detected", gameFields(&gs)...)

	record := matchstore.PreGameRecord{
		GameID:         gs.GameID,
		PUUID:          t.summoner.PUUID,
		StartTimestamp: pre.StartedAt(),
		Payload:        pre,
	}
	if err := t.store.UpsertPreGame(ctx, record); err != nil {
		t.metrics.recordPersistFailure(ctx, telemetry.StagePreGame)
		t.logger.Warn("pre-game persistence failed", append(gameFields(&gs), zap.Error(err))...)
	}

	return state{phase: PhasePreGame, game: &gs, wait: t.settings.InGameInterval}, nil
}

// awaitEnd checks whether the summoner is still in the tracked game. Any other answer ends it.
func (t *Tracker) awaitEnd(ctx context.Context, st state) (state, error) {
	current, err := t.upstream.ActiveGame(ctx, t.summoner.PUUID)
	t.lastPoll = t.clock()
	if err != nil {
		if errs.Terminal(err) {
			return st, err
		}
		t.noteFailure("in-game poll failed", err)
		return state{phase: PhasePreGame, game: st.game, wait: t.settings.InGameInterval}, nil
	}
	t.lastErr = nil

	if current != nil && current.GameID == st.game.GameID {
		return state{phase: PhasePreGame, game: st.game, wait: t.settings.InGameInterval}, nil
	}
	fields := gameFields(st.game)
	if current != nil {
		fields = append(fields, zap.Int64("next_game_id", current.GameID))
	}
	t.logger.Info("game ended", fields...)
	return state{phase: PhasePostGame, game: st.game, wait: 0}, nil
}

// resolve fetches the match result, builds the post-game snapshot and persists it. Every
// outcome except an authentication failure returns to idle.
func (t *Tracker) resolve(ctx context.Context, st state, ranks *ttlCache[cacheKey, *tracking.RankStanding]) (state, error) {
	idle := state{phase: PhaseIdle, wait: t.settings.Cooldown}
	gs := *st.game
	matchID := t.upstream.MatchID(gs.PreGame.PlatformID, gs.GameID)

	var match *riot.Match
	for attempt := 1; attempt <= t.settings.ResultFetchAttempts; attempt++ {
		m, err := t.upstream.Match(ctx, matchID)
		if err != nil {
			if errs.Terminal(err) {
				return st, err
			}
			t.noteFailure("match fetch failed", err)
		}
		if m != nil {
			match = m
			break
		}
		if ctx.Err() != nil {
			return st, nil
		}
		if attempt < t.settings.ResultFetchAttempts {
			if err := t.sleep(ctx, t.settings.ResultRetryInterval); err != nil {
				return st, nil
			}
		}
	}
	if match == nil {
		t.discard(ctx, gs, ReasonMatchUnavailable, zap.String("match_id", matchID))
		return idle, nil
	}

	indices := tracking.ResolveIndices(match, t.known)
	idx, ok := indices[t.summoner.PUUID]
	if !ok {
		t.discard(ctx, gs, ReasonParticipantMissing, zap.String("match_id", matchID))
		return idle, nil
	}
	participant, ok := match.Participant(idx)
	if !ok {
		t.discard(ctx, gs, ReasonParticipantMismatch, zap.String("match_id", matchID), zap.Int("participant_index", idx))
		return idle, nil
	}

	rank, err := t.rankedStanding(ctx, ranks)
	if err != nil {
		if errs.Terminal(err) {
			return st, err
		}
		t.noteFailure("post-game rank fetch failed", err)
	}

	post := tracking.PostGameSnapshot{
		MatchID:          matchID,
		ParticipantIndex: idx,
		Result:           tracking.ResultFromWin(participant.Win),
		ChampionName:     participant.ChampionName,
		Kills:            participant.Kills,
		Deaths:           participant.Deaths,
		Assists:          participant.Assists,
		GameDuration:     match.Info.GameDuration,
		CapturedAt:       t.clock().UTC(),
		Rank:             rank,
	}
	done := gs.Complete(post)

	if err := t.persistPostGame(ctx, done); err != nil {
		t.metrics.recordPersistFailure(ctx, telemetry.StagePostGame)
		t.logger.Error("post-game persistence failed", append(gameFields(&done), zap.Error(err))...)
	}
	t.gamesCompleted++
	t.metrics.recordCompleted(ctx, string(done.Result()))
	t.logger.Info("game completed", append(gameFields(&done), zap.String("result", string(done.Result())))...)
	return idle, nil
}

func (t *Tracker) persistPostGame(ctx context.Context, gs tracking.GameState) error {
	record := matchstore.PostGameRecord{
		GameID:  gs.GameID,
		PUUID:   t.summoner.PUUID,
		Result:  gs.Result(),
		Payload: *gs.PostGame,
	}
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = t.settings.PersistRetryInterval
	delays.MaxInterval = 10 * t.settings.PersistRetryInterval

	var lastErr error
	attempts := t.settings.PostGamePersistAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = t.store.UpsertPostGame(ctx, record)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		wait := delays.NextBackOff()
		if wait == backoff.Stop {
			wait = delays.MaxInterval
		}
		t.logger.Warn("post-game persistence retry",
			append(gameFields(&gs), zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(lastErr))...)
		if err := t.sleep(ctx, wait); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return errs.New(serviceName, errs.CodePersistence,
		errs.WithMessage("post-game upsert failed"),
		errs.WithField("game_id", strconv.FormatInt(gs.GameID, 10)),
		errs.WithField("attempts", strconv.Itoa(attempts)),
		errs.WithCause(lastErr))
}

func (t *Tracker) rankedStanding(ctx context.Context, ranks *ttlCache[cacheKey, *tracking.RankStanding]) (*tracking.RankStanding, error) {
	key := cacheKey{op: opRankedStanding, arg: t.summoner.PUUID}
	if cached, ok := ranks.get(key); ok {
		return cached, nil
	}
	rank, err := t.upstream.RankedStanding(ctx, t.summoner)
	if err != nil {
		return nil, err
	}
	ranks.put(key, rank)
	return rank, nil
}

func (t *Tracker) discard(ctx context.Context, gs tracking.GameState, reason string, extra ...zap.Field) {
	t.anomalies++
	t.metrics.recordAnomaly(ctx, reason)
	anomaly := errs.New(serviceName, errs.CodeReconciliation,
		errs.WithMessage("post-game data could not be matched"),
		errs.WithField("reason", reason))
	t.lastErr = anomaly
	fields := append(gameFields(&gs), extra...)
	t.logger.Warn("discarding game", append(fields, zap.String("reason", reason))...)
}

func (t *Tracker) noteFailure(msg string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	t.lastErr = err
	t.logger.Warn(msg, zap.Error(err))
}

// markRestart records a supervisor restart after a recovered panic.
func (t *Tracker) markRestart(ctx context.Context, cause error) {
	t.restarts++
	t.lastErr = cause
	t.metrics.recordRestart(ctx)
	t.publish(state{phase: PhaseIdle})
}

func (t *Tracker) publish(st state) {
	snapshot := &Status{
		Summoner:       t.summoner.Name,
		PUUID:          t.summoner.PUUID,
		Phase:          st.phase,
		GamesCompleted: t.gamesCompleted,
		Anomalies:      t.anomalies,
		Restarts:       t.restarts,
		UpdatedAt:      t.clock().UTC(),
	}
	if !t.lastPoll.IsZero() {
		polled := t.lastPoll.UTC()
		snapshot.LastPoll = &polled
	}
	if st.game != nil {
		snapshot.GameID = st.game.GameID
		snapshot.CaptureID = st.game.CaptureID.String()
	}
	if t.lastErr != nil {
		snapshot.LastError = t.lastErr.Error()
	}
	t.status.Store(snapshot)
}

func gameFields(gs *tracking.GameState) []zap.Field {
	if gs == nil {
		return nil
	}
	return []zap.Field{
		zap.Int64("game_id", gs.GameID),
		zap.String("capture_id", gs.CaptureID.String()),
	}
}
