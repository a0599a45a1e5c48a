package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/clock"
	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/observability"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	"github.com/spec-kit/lifecycle-engine/internal/service"
)

// Sweep phases, also used as metric keys.
const (
	PhaseDispatch      = "dispatch"
	PhaseSnoozeExpiry  = "snooze_expiry"
	PhaseChatIdle      = "chat_idle"
	PhaseTicketResolve = "ticket_autoclose"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Dispatched    int
	Woken         int
	ChatsClosed   int
	TicketsClosed int
}

// SweeperDependencies bundles collaborators of the sweep.
type SweeperDependencies struct {
	Lifecycle *service.LifecycleService
	Schedule  *service.ScheduleService
	Store     repository.Store
	Clock     clock.Clock
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Sweeper is the engine's only background activity: it fires due scheduled replies, expires
// snoozes and closes inactive items.
type Sweeper struct {
	deps   SweeperDependencies
	sched  config.SchedulerConfig
	engine config.EngineConfig

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper builds a sweeper.
func NewSweeper(deps SweeperDependencies, sched config.SchedulerConfig, engine config.EngineConfig) *Sweeper {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Sweeper{deps: deps, sched: sched, engine: engine}
}

// Start schedules RunOnce every sweep interval. Overlapping runs are skipped.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	logger := cron.PrintfLogger(zap.NewStdLog(s.deps.Logger.Named("cron")))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := fmt.Sprintf("@every %s", s.sched.SweepInterval())
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.deps.Logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.deps.Logger.Info("sweeper started", zap.Duration("interval", s.sched.SweepInterval()))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs every sweep phase. A failing phase is logged and does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		result   SweepResult
		firstErr error
	)
	record := func(phase string, n int, err error) {
		s.deps.Metrics.RecordSweep(phase, n)
		if err != nil {
			s.deps.Logger.Warn("sweep phase failed", zap.String("phase", phase), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.deps.Schedule != nil {
		n, err := s.deps.Schedule.DispatchDue(ctx)
		result.Dispatched = n
		record(PhaseDispatch, n, err)
	}
	if s.deps.Lifecycle == nil || s.deps.Store == nil {
		return result, firstErr
	}

	now := s.deps.Clock.Now().UTC()
	items := s.deps.Store.Reader().Items

	ids, err := items.ListSnoozeExpired(ctx, now, s.batchSize())
	result.Woken, err = s.each(ctx, ids, err, func(id string) (bool, error) {
		return s.deps.Lifecycle.ExpireSnooze(ctx, id)
	})
	record(PhaseSnoozeExpiry, result.Woken, err)

	if idle := s.engine.ChatInactivity(); idle > 0 {
		cutoff := now.Add(-idle)
		ids, err := items.ListIdleChats(ctx, cutoff, s.batchSize())
		result.ChatsClosed, err = s.each(ctx, ids, err, func(id string) (bool, error) {
			return s.deps.Lifecycle.AutoClose(ctx, id, cutoff)
		})
		record(PhaseChatIdle, result.ChatsClosed, err)
	}

	if wait := s.engine.TicketAutoClose(); wait > 0 {
		cutoff := now.Add(-wait)
		ids, err := items.ListResolvedBefore(ctx, cutoff, s.batchSize())
		result.TicketsClosed, err = s.each(ctx, ids, err, func(id string) (bool, error) {
			return s.deps.Lifecycle.AutoClose(ctx, id, cutoff)
		})
		record(PhaseTicketResolve, result.TicketsClosed, err)
	}

	if result != (SweepResult{}) {
		s.deps.Logger.Info("sweep finished",
			zap.Int("dispatched", result.Dispatched),
			zap.Int("woken", result.Woken),
			zap.Int("chats_closed", result.ChatsClosed),
			zap.Int("tickets_closed", result.TicketsClosed))
	}
	return result, firstErr
}

func (s *Sweeper) each(ctx context.Context, ids []string, listErr error, fn func(id string) (bool, error)) (int, error) {
	if listErr != nil {
		return 0, listErr
	}
	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		ok, err := fn(id)
		if err != nil {
			s.deps.Logger.Warn("sweep item failed", zap.String("item_id", id), zap.Error(err))
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (s *Sweeper) batchSize() int {
	if s.sched.BatchSize <= 0 {
		return 100
	}
	return s.sched.BatchSize
}
