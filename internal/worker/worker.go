// Package worker implements the three per-job actors (Submit, Monitor,
// Depend) that each own a sim for the duration of exactly one lifecycle
// transition. Every worker is one-shot: it runs to
// completion or to a terminal state, emits its sim id on a shared channel,
// and exits. None holds a connection or lock across a sleep.
package worker

import (
	"context"
	"fmt"

	"github.com/mdsuper/mdsuper/internal/common"
)

// Completion is what a worker reports to the Supervisor when it exits,
// over the shared multi-producer / single-consumer channel carrying
// sim ids.
type Completion struct {
	SimID int64
}

// Worker is the common shape of Submit, Monitor, and Depend: run to
// completion, reporting on done when finished. Run must never panic past
// its own boundary, since a crashing worker must not corrupt the
// Supervisor, so each Run implementation recovers internally and
// reports a completion rather than propagating.
type Worker interface {
	Run(ctx context.Context, done chan<- Completion)
}

// runWithCrashBoundary wraps a worker body so an unexpected panic becomes
// a logged error and a best-effort completion report instead of taking
// down the Supervisor process.
func runWithCrashBoundary(logger *common.Logger, simID int64, done chan<- Completion, body func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Int("sim_id", int(simID)).Str("panic", fmt.Sprintf("%v", r)).Msg("worker panicked, reporting completion")
			done <- Completion{SimID: simID}
		}
	}()
	body()
}
