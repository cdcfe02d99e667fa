package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// MonitorWorker owns a sim in state 2, polling the
// SchedulerAdapter for the aggregate verdict over its job ids until it
// reaches a terminal verdict.
type MonitorWorker struct {
	SimID     int64
	Store     interfaces.StoreManager
	Scheduler interfaces.SchedulerAdapter
	Logger    *common.Logger

	// Clean enables deletion of JSCRIPTS/JLOGS files on complete.
	Clean bool
	// Interval overrides the poll tick for tests; zero falls back to 5s.
	Interval time.Duration
}

func (w *MonitorWorker) Run(ctx context.Context, done chan<- Completion) {
	runWithCrashBoundary(w.Logger, w.SimID, done, func() {
		w.run(ctx)
		done <- Completion{SimID: w.SimID}
	})
}

func (w *MonitorWorker) run(ctx context.Context) {
	jobIDs, err := w.Store.JobInfos().ListBySim(ctx, w.SimID)
	if err != nil {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("monitor: failed to load job ids")
		return
	}
	if len(jobIDs) == 0 {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Msg("monitor: no job ids recorded for running sim")
		return
	}

	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		verdict, err := w.Scheduler.Aggregate(ctx, jobIDs)
		if err != nil {
			w.Logger.Warn().Int("sim_id", int(w.SimID)).Err(err).Msg("monitor: scheduler probe failed, will retry next tick")
		} else if verdict == interfaces.VerdictFailed || verdict == interfaces.VerdictComplete {
			w.finish(ctx, verdict)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *MonitorWorker) finish(ctx context.Context, verdict interfaces.Verdict) {
	if verdict == interfaces.VerdictComplete && w.Clean {
		w.cleanup(ctx)
	}

	status := model.Status(verdict)
	if err := w.Store.Sims().SetStatus(ctx, w.SimID, status); err != nil {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("monitor: failed to persist final status")
		return
	}
	w.Logger.Info().Int("sim_id", int(w.SimID)).Str("status", status.String()).Msg("monitor: sim reached terminal status")
}

// cleanup removes the batch script/log files named under JSCRIPTS/JLOGS and
// drops those keys from the fout map. Missing files warn,
// they never fail the transition.
func (w *MonitorWorker) cleanup(ctx context.Context) {
	fout, err := w.Store.Fouts().Get(ctx, w.SimID)
	if err != nil {
		w.Logger.Warn().Int("sim_id", int(w.SimID)).Err(err).Msg("monitor: cleanup could not load fout")
		return
	}
	if fout == nil {
		return
	}

	changed := false
	for _, key := range []string{model.FoutKeyJScripts, model.FoutKeyJLogs} {
		raw, ok := fout.Files[key]
		if !ok {
			continue
		}
		for _, path := range toStringSlice(raw) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				w.Logger.Warn().Int("sim_id", int(w.SimID)).Str("path", path).Err(err).Msg("monitor: cleanup failed to remove file")
			} else if err != nil {
				w.Logger.Warn().Int("sim_id", int(w.SimID)).Str("path", path).Msg("monitor: cleanup file already missing")
			}
		}
		delete(fout.Files, key)
		changed = true
	}

	if changed {
		if err := w.Store.Fouts().Upsert(ctx, w.SimID, fout.Files); err != nil {
			w.Logger.Warn().Int("sim_id", int(w.SimID)).Err(err).Msg("monitor: failed to persist fout after cleanup")
		}
	}
}

// toStringSlice normalizes a JSCRIPTS/JLOGS value, which round-trips
// through the store as []interface{} after JSON decoding, back to []string.
func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}
