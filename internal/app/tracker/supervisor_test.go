package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/memory"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/riot"
)

func quickSleep(ctx context.Context, _ time.Duration) error {
	return riot.SleepContext(ctx, time.Millisecond)
}

// cyclingUpstream plays back an endless sequence of games: two in-game polls then one
// not-in-game poll per game.
type cyclingUpstream struct {
	puuid   string
	base    int64
	calls   atomic.Int64
	panicAt atomic.Int64
	authErr atomic.Bool
}

func newCyclingUpstream(puuid string, base int64) *cyclingUpstream {
	u := &cyclingUpstream{puuid: puuid, base: base}
	u.panicAt.Store(-1)
	return u
}

func (u *cyclingUpstream) ActiveGame(context.Context, string) (*riot.CurrentGame, error) {
	n := u.calls.Add(1) - 1
	if n == u.panicAt.Load() {
		panic(fmt.Sprintf("poll %d exploded", n))
	}
	if u.authErr.Load() {
		return nil, authError()
	}
	if n%3 == 2 {
		return nil, nil
	}
	return &riot.CurrentGame{GameID: u.base + n/3, PlatformID: "EUW1"}, nil
}

func (u *cyclingUpstream) RankedStanding(context.Context, tracking.Summoner) (*tracking.RankStanding, error) {
	return &tracking.RankStanding{QueueType: tracking.SoloQueue, Tier: "SILVER"}, nil
}

func (u *cyclingUpstream) Match(_ context.Context, matchID string) (*riot.Match, error) {
	var gameID int64
	if _, err := fmt.Sscanf(matchID, "EUW1_%d", &gameID); err != nil {
		return nil, err
	}
	return matchWith(gameID, u.puuid, int(gameID%10), gameID%2 == 0), nil
}

func (u *cyclingUpstream) MatchID(platformID string, gameID int64) string {
	return fmt.Sprintf("%s_%d", platformID, gameID)
}

// orderingStore checks that each summoner holds at most one open game and that pre and
// post upserts alternate for the same game.
type orderingStore struct {
	*memory.MatchStore

	mu         sync.Mutex
	open       map[string]int64
	completed  map[string]int
	violations []string
}

func newOrderingStore() *orderingStore {
	return &orderingStore{
		MatchStore: memory.NewMatchStore(),
		open:       make(map[string]int64),
		completed:  make(map[string]int),
	}
}

func (s *orderingStore) UpsertPreGame(ctx context.Context, record matchstore.PreGameRecord) error {
	s.mu.Lock()
	if prev, ok := s.open[record.PUUID]; ok {
		s.violations = append(s.violations, fmt.Sprintf("%s: pre %d while %d open", record.PUUID, record.GameID, prev))
	}
	s.open[record.PUUID] = record.GameID
	s.mu.Unlock()
	return s.MatchStore.UpsertPreGame(ctx, record)
}

func (s *orderingStore) UpsertPostGame(ctx context.Context, record matchstore.PostGameRecord) error {
	s.mu.Lock()
	if prev, ok := s.open[record.PUUID]; !ok || prev != record.GameID {
		s.violations = append(s.violations, fmt.Sprintf("%s: post %d without matching pre", record.PUUID, record.GameID))
	}
	delete(s.open, record.PUUID)
	s.completed[record.PUUID]++
	s.mu.Unlock()
	return s.MatchStore.UpsertPostGame(ctx, record)
}

func (s *orderingStore) completedFor(puuid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[puuid]
}

func (s *orderingStore) problems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.violations...)
}

func newSimTracker(t *testing.T, name string, upstream Upstream, store matchstore.Store, known tracking.IdentitySet) *Tracker {
	t.Helper()
	settings := testSettings
	settings.Cooldown = time.Millisecond
	tr, err := New(tracking.Summoner{Name: name, PUUID: "puuid-" + name}, upstream, store, known, settings,
		WithLogger(zaptest.NewLogger(t)),
		WithSleeper(quickSleep))
	require.NoError(t, err)
	return tr
}

func stopSupervisor(t *testing.T, sup *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(ctx))
}

func TestSupervisorRunsSummonersIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)

	names := []string{"zed", "ahri", "morgana", "lux", "braum"}
	known := tracking.NewIdentitySet()
	for _, name := range names {
		known["puuid-"+name] = struct{}{}
	}
	store := newOrderingStore()
	trackers := make([]*Tracker, 0, len(names))
	for i, name := range names {
		trackers = append(trackers, newSimTracker(t, name, newCyclingUpstream("puuid-"+name, int64(1000*(i+1))), store, known))
	}

	var closed atomic.Int32
	sup := NewSupervisor(trackers, zaptest.NewLogger(t), WithConnectionCloser(func() { closed.Add(1) }))
	require.NoError(t, sup.Start(context.Background()))
	require.ErrorIs(t, sup.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		for _, name := range names {
			if store.completedFor("puuid-"+name) < 3 {
				return false
			}
		}
		return true
	}, 10*time.Second, 5*time.Millisecond)

	stopSupervisor(t, sup)
	<-sup.Done()
	require.Equal(t, int32(1), closed.Load())
	require.Empty(t, store.problems())

	statuses := sup.Statuses()
	require.Len(t, statuses, len(names))
	for i := 1; i < len(statuses); i++ {
		require.Less(t, statuses[i-1].Summoner, statuses[i].Summoner)
	}
	for _, st := range statuses {
		require.GreaterOrEqual(t, st.GamesCompleted, 3)
		require.Zero(t, st.Anomalies)
	}

	require.ErrorIs(t, sup.Stop(context.Background()), ErrNotStarted)
}

func TestSupervisorRestartsPanickedTracker(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newOrderingStore()
	faulty := newCyclingUpstream("puuid-faulty", 100)
	faulty.panicAt.Store(1)
	healthy := newCyclingUpstream("puuid-healthy", 500)

	trFaulty := newSimTracker(t, "faulty", faulty, store, nil)
	trHealthy := newSimTracker(t, "healthy", healthy, store, nil)

	var restartWaits atomic.Int32
	sup := NewSupervisor([]*Tracker{trFaulty, trHealthy}, zaptest.NewLogger(t),
		WithRestartBackoff(time.Millisecond, 5*time.Millisecond),
		WithRestartSleeper(func(ctx context.Context, d time.Duration) error {
			restartWaits.Add(1)
			return quickSleep(ctx, d)
		}))
	require.NoError(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool {
		return trFaulty.Status().Restarts == 1 &&
			store.completedFor("puuid-faulty") >= 1 &&
			store.completedFor("puuid-healthy") >= 2
	}, 10*time.Second, 5*time.Millisecond)

	stopSupervisor(t, sup)
	require.Equal(t, int32(1), restartWaits.Load())
	require.Zero(t, trHealthy.Status().Restarts)
}

func TestSupervisorAuthFailureHaltsOnlyThatTracker(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newOrderingStore()
	revoked := newCyclingUpstream("puuid-revoked", 100)
	revoked.authErr.Store(true)
	healthy := newCyclingUpstream("puuid-healthy", 500)

	trRevoked := newSimTracker(t, "revoked", revoked, store, nil)
	trHealthy := newSimTracker(t, "healthy", healthy, store, nil)

	sup := NewSupervisor([]*Tracker{trRevoked, trHealthy}, zaptest.NewLogger(t))
	require.NoError(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool {
		return trRevoked.Status().Phase == PhaseHalted && store.completedFor("puuid-healthy") >= 2
	}, 10*time.Second, 5*time.Millisecond)

	require.Equal(t, int64(1), revoked.calls.Load())
	require.NotEqual(t, PhaseHalted, trHealthy.Status().Phase)

	stopSupervisor(t, sup)
	require.Equal(t, PhaseHalted, trRevoked.Status().Phase)
}

func TestSupervisorStopsWhenParentCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newSimTracker(t, "solo", newCyclingUpstream("puuid-solo", 1), newOrderingStore(), nil)
	sup := NewSupervisor([]*Tracker{tr}, nil)
	require.Nil(t, sup.Done())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sup.Start(ctx))
	cancel()

	select {
	case <-sup.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after parent cancellation")
	}
	stopSupervisor(t, sup)
}

func TestSupervisorStopHonoursDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	blocking := &blockingUpstream{release: release, entered: make(chan struct{})}
	tr := newSimTracker(t, "stuck", blocking, newOrderingStore(), nil)

	var closed atomic.Bool
	sup := NewSupervisor([]*Tracker{tr}, nil, WithConnectionCloser(func() { closed.Store(true) }))
	require.NoError(t, sup.Start(context.Background()))
	<-blocking.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sup.Stop(ctx), context.DeadlineExceeded)
	require.False(t, closed.Load())

	close(release)
	<-sup.Done()
}

func TestSupervisorRefusesStartWhileTrackersDrain(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	blocking := &blockingUpstream{release: release, entered: make(chan struct{})}
	tr := newSimTracker(t, "stuck", blocking, newOrderingStore(), nil)

	var closed atomic.Int32
	sup := NewSupervisor([]*Tracker{tr}, nil, WithConnectionCloser(func() { closed.Add(1) }))
	require.NoError(t, sup.Start(context.Background()))
	<-blocking.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sup.Stop(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, sup.Start(context.Background()), ErrAlreadyStarted)
	require.Equal(t, int64(1), blocking.calls.Load())

	close(release)
	stopSupervisor(t, sup)
	require.Equal(t, int32(1), closed.Load())
	require.Equal(t, int64(1), blocking.calls.Load())
	require.ErrorIs(t, sup.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, sup.Start(context.Background()))
	stopSupervisor(t, sup)
	require.Equal(t, int32(2), closed.Load())
}

// blockingUpstream ignores cancellation until released.
type blockingUpstream struct {
	cyclingUpstream
	release <-chan struct{}
	entered chan struct{}
	once    sync.Once
	calls   atomic.Int64
}

func (u *blockingUpstream) ActiveGame(context.Context, string) (*riot.CurrentGame, error) {
	u.calls.Add(1)
	u.once.Do(func() { close(u.entered) })
	<-u.release
	return nil, nil
}
