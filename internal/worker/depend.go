package worker

import (
	"context"
	"time"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// DependWorker owns a sim in state 4, polling its
// parent's status until the parent reaches a terminal status, then
// promotes the child to submitted or propagates the dependency failure.
type DependWorker struct {
	SimID  int64
	Store  interfaces.StoreManager
	Logger *common.Logger

	// Interval overrides the poll tick for tests; zero falls back to 5s.
	Interval time.Duration
}

func (w *DependWorker) Run(ctx context.Context, done chan<- Completion) {
	runWithCrashBoundary(w.Logger, w.SimID, done, func() {
		w.run(ctx)
		done <- Completion{SimID: w.SimID}
	})
}

func (w *DependWorker) run(ctx context.Context) {
	sim, err := w.Store.Sims().Get(ctx, w.SimID)
	if err != nil {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("depend: failed to load sim")
		return
	}
	if !sim.HasParent() {
		// The Supervisor already validates this before spawning.
		w.Logger.Error().Int("sim_id", int(w.SimID)).Msg("depend: no parent at run time")
		w.transition(ctx, model.StatusFailed)
		return
	}
	parentID := *sim.ParentID

	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		parent, err := w.Store.Sims().Get(ctx, parentID)
		if err != nil {
			w.Logger.Warn().Int("sim_id", int(w.SimID)).Int("parent_id", int(parentID)).Err(err).Msg("depend: failed to load parent, will retry next tick")
		} else {
			switch parent.StatID {
			case model.StatusComplete:
				w.transition(ctx, model.StatusSubmitted)
				return
			case model.StatusFailed, model.StatusDependFailed:
				w.transition(ctx, model.StatusDependFailed)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *DependWorker) transition(ctx context.Context, status model.Status) {
	if err := w.Store.Sims().SetStatus(ctx, w.SimID, status); err != nil {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("depend: failed to persist transition")
		return
	}
	w.Logger.Info().Int("sim_id", int(w.SimID)).Str("status", status.String()).Msg("depend: sim transitioned")
}
