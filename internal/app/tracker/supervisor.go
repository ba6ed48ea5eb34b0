package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/riot"
)

var (
	// ErrAlreadyStarted is returned by Start on a running supervisor.
	ErrAlreadyStarted = errors.New("tracker supervisor already started")
	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("tracker supervisor not started")
)

// SupervisorOption customises a Supervisor.
type SupervisorOption func(*Supervisor)

// WithConnectionCloser registers a hook run after every tracker has stopped, used to
// release the shared HTTP connection pool.
func WithConnectionCloser(closer func()) SupervisorOption {
	return func(s *Supervisor) {
		s.closer = closer
	}
}

// WithRestartBackoff bounds the delay before a panicked tracker is restarted.
func WithRestartBackoff(initial, maxInterval time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if initial > 0 {
			s.restartInitial = initial
		}
		if maxInterval > 0 {
			s.restartMax = maxInterval
		}
	}
}

// WithRestartSleeper replaces the wait used between restarts.
func WithRestartSleeper(sleep riot.Sleeper) SupervisorOption {
	return func(s *Supervisor) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// Supervisor runs one tracker per summoner concurrently. A panic in one tracker restarts
// only that tracker; an authentication failure halts only that tracker.
type Supervisor struct {
	trackers []*Tracker
	logger   *zap.Logger

	closer         func()
	restartInitial time.Duration
	restartMax     time.Duration
	sleep          riot.Sleeper

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor wires the trackers under one lifecycle.
func NewSupervisor(trackers []*Tracker, logger *zap.Logger, opts ...SupervisorOption) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		trackers:       append([]*Tracker(nil), trackers...),
		logger:         logger,
		closer:         nil,
		restartInitial: time.Second,
		restartMax:     time.Minute,
		sleep:          riot.SleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start launches every tracker and returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true

	wg := conc.NewWaitGroup()
	for _, tr := range s.trackers {
		wg.Go(func() {
			s.supervise(runCtx, tr)
		})
	}
	go func() {
		defer close(done)
		wg.Wait()
	}()

	s.logger.Info("tracker supervisor started", zap.Int("trackers", len(s.trackers)))
	return nil
}

// Stop cancels every tracker and waits for them, bounded by ctx. Once all trackers have
// returned the connection closer runs. If ctx expires first the supervisor stays started,
// so Start keeps refusing and Stop may be retried.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	if !s.running || s.done != done {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.closer != nil {
		s.closer()
	}
	s.logger.Info("tracker supervisor stopped")
	return nil
}

// Done is closed once every tracker has returned. It is nil before Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Statuses returns every tracker snapshot ordered by summoner name.
func (s *Supervisor) Statuses() []Status {
	out := make([]Status, 0, len(s.trackers))
	for _, tr := range s.trackers {
		out = append(out, tr.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Summoner < out[j].Summoner })
	return out
}

func (s *Supervisor) supervise(ctx context.Context, tr *Tracker) {
	logger := s.logger.With(zap.String("summoner", tr.Summoner().Name))
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = s.restartInitial
	delays.MaxInterval = s.restartMax

	for {
		var (
			catcher panics.Catcher
			runErr  error
		)
		catcher.Try(func() {
			runErr = tr.Run(ctx)
		})

		if recovered := catcher.Recovered(); recovered != nil {
			wait := delays.NextBackOff()
			if wait == backoff.Stop {
				wait = s.restartMax
			}
			tr.markRestart(ctx, recovered.AsError())
			logger.Error("tracker panicked, restarting",
				zap.Any("panic", recovered.Value),
				zap.ByteString("stack", recovered.Stack),
				zap.Duration("restart_in", wait))
			if err := s.sleep(ctx, wait); err != nil {
				return
			}
			continue
		}

		if runErr != nil {
			if errs.IsCode(runErr, errs.CodeAuth) {
				logger.Error("tracker halted on authentication failure", zap.Error(runErr))
			} else {
				logger.Error("tracker exited", zap.Error(runErr))
			}
		}
		return
	}
}
