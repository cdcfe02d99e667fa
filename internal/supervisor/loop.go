// Package supervisor implements the single long-lived actor
// that polls the store for actionable sims, enforces one worker per sim
// via an in-memory active set, and reaps completions.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mdsuper/mdsuper/internal/command"
	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
	"github.com/mdsuper/mdsuper/internal/worker"
)

// Config holds the Supervisor's tunables.
type Config struct {
	// TickInterval is the Supervisor's own poll cadence; default 10s.
	TickInterval time.Duration
	// MonitorInterval / DependInterval are passed to spawned workers; default 5s each.
	MonitorInterval time.Duration
	DependInterval  time.Duration
	// SubmitNTrials / SubmitBackoff override Submit's retry policy; defaults 3 / 5s.
	SubmitNTrials int
	SubmitBackoff time.Duration
	// Clean enables JSCRIPTS/JLOGS cleanup on Monitor completion (--clean).
	Clean bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 5 * time.Second
	}
	if c.DependInterval <= 0 {
		c.DependInterval = 5 * time.Second
	}
	if c.SubmitNTrials <= 0 {
		c.SubmitNTrials = 3
	}
	if c.SubmitBackoff <= 0 {
		c.SubmitBackoff = 5 * time.Second
	}
	return c
}

// Loop is the Supervisor actor. One Loop per database: the in-memory
// active set only guarantees single ownership because exactly one
// Supervisor runs against a given database.
type Loop struct {
	store     interfaces.StoreManager
	scheduler interfaces.SchedulerAdapter
	invoker   command.Invoker
	logger    *common.Logger
	cfg       Config

	active map[int64]context.CancelFunc
	done   chan worker.Completion
	wg     sync.WaitGroup
}

// New constructs a Loop ready to Run.
func New(store interfaces.StoreManager, scheduler interfaces.SchedulerAdapter, invoker command.Invoker, logger *common.Logger, cfg Config) *Loop {
	return &Loop{
		store:     store,
		scheduler: scheduler,
		invoker:   invoker,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		active:    make(map[int64]context.CancelFunc),
		done:      make(chan worker.Completion, 64),
	}
}

// Run executes the tick loop until ctx is cancelled (SIGINT/SIGTERM at the
// host). It returns as soon as cancellation is observed between ticks,
// without running a further tick; in-flight workers are left running for
// the host's grace period and are not waited on here.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("supervisor: shutdown signal observed, exiting tick loop")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one pass: reap completions, list actionable sims, validate
// and spawn.
func (l *Loop) tick(ctx context.Context) {
	l.reap()

	sims, err := l.store.Sims().ListActionable(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("supervisor: failed to list actionable sims")
		return
	}

	for _, sim := range sims {
		if _, owned := l.active[sim.ID]; owned {
			continue
		}

		if sim.StatID == model.StatusSubmitted || sim.StatID == model.StatusDepend {
			if ok := l.validate(ctx, sim); !ok {
				continue
			}
		}

		l.spawn(ctx, sim)
	}
}

// reap drains completed sim ids, reported by workers since the last tick,
// out of the active set. Workers have already exited by the
// time their id reaches done, so no further wait is needed here.
func (l *Loop) reap() {
	for {
		select {
		case c := <-l.done:
			if cancel, ok := l.active[c.SimID]; ok {
				cancel()
				delete(l.active, c.SimID)
			}
		default:
			return
		}
	}
}

// validate checks a sim is runnable before spawning: a sim in
// {submitted, depend} must have at least one
// param row; state 4 additionally requires its parent to exist.
func (l *Loop) validate(ctx context.Context, sim *model.Sim) bool {
	params, err := l.store.Params().ListBySim(ctx, sim.ID)
	if err != nil {
		l.logger.Warn().Int("sim_id", int(sim.ID)).Err(err).Msg("supervisor: failed to validate params, will retry next tick")
		return false
	}
	if len(params) == 0 {
		l.invalidate(ctx, sim.ID, "no param rows")
		return false
	}
	if sim.StatID == model.StatusDepend {
		if !sim.HasParent() {
			l.invalidate(ctx, sim.ID, "depend sim has no parent_id")
			return false
		}
		if _, err := l.store.Sims().Get(ctx, *sim.ParentID); err != nil {
			l.invalidate(ctx, sim.ID, fmt.Sprintf("parent sim %d not found: %v", *sim.ParentID, err))
			return false
		}
	}
	return true
}

func (l *Loop) invalidate(ctx context.Context, simID int64, reason string) {
	l.logger.Error().Int("sim_id", int(simID)).Str("reason", reason).Msg("supervisor: validation failed, failing sim")
	if err := l.store.Sims().SetStatus(ctx, simID, model.StatusFailed); err != nil {
		l.logger.Error().Int("sim_id", int(simID)).Err(err).Msg("supervisor: failed to persist validation failure")
	}
}

// spawn dispatches the worker dictated by a sim's status
// and records it in the active set.
func (l *Loop) spawn(ctx context.Context, sim *model.Sim) {
	workerCtx, cancel := context.WithCancel(ctx)
	l.active[sim.ID] = cancel

	// Tag every log line the worker emits with its sim id so the sim's
	// lifecycle can be grepped out of the combined daemon log.
	wlog := l.logger.WithCorrelationId(fmt.Sprintf("sim-%d", sim.ID))

	var w worker.Worker
	switch sim.StatID {
	case model.StatusSubmitted:
		w = &worker.SubmitWorker{
			SimID: sim.ID, Store: l.store, Invoker: l.invoker, Logger: wlog,
			NTrials: l.cfg.SubmitNTrials, Backoff: l.cfg.SubmitBackoff,
		}
	case model.StatusRunning:
		w = &worker.MonitorWorker{
			SimID: sim.ID, Store: l.store, Scheduler: l.scheduler, Logger: wlog,
			Clean: l.cfg.Clean, Interval: l.cfg.MonitorInterval,
		}
	case model.StatusDepend:
		w = &worker.DependWorker{
			SimID: sim.ID, Store: l.store, Logger: wlog, Interval: l.cfg.DependInterval,
		}
	default:
		delete(l.active, sim.ID)
		return
	}

	l.logger.Info().Int("sim_id", int(sim.ID)).Str("status", sim.StatID.String()).Msg("supervisor: spawning worker")
	l.safeGo(sim.ID, func() { w.Run(workerCtx, l.done) })
}

// safeGo runs a worker body with panic recovery, so a worker's crash
// cannot corrupt the Supervisor, on top of the crash boundary the
// worker package already wraps each Run in.
func (l *Loop) safeGo(simID int64, fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error().Int("sim_id", int(simID)).Str("panic", fmt.Sprintf("%v", r)).Str("stack", string(debug.Stack())).Msg("supervisor: recovered from panic in worker goroutine")
			}
		}()
		fn()
	}()
}

// Wait blocks until every spawned worker goroutine has returned. The host
// process calls this after Run returns, bounded by its own grace period
// timer.
func (l *Loop) Wait() {
	l.wg.Wait()
}
