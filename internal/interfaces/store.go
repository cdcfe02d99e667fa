// Package interfaces defines the contracts between the supervisor core and
// its collaborators: the relational store and the batch scheduler. Keeping
// these as interfaces (rather than reaching for concrete types directly)
// lets the worker and supervisor packages be tested against fakes without
// a live store or a live cluster.
package interfaces

import (
	"context"
	"time"

	"github.com/mdsuper/mdsuper/internal/model"
)

// StoreManager is the aggregate entry point a caller obtains once at
// startup and threads through the supervisor and its workers.
type StoreManager interface {
	Sims() SimStore
	Params() ParamStore
	Fouts() FoutStore
	JobInfos() JobInfoStore
	Close() error
}

// SimStore manages the sim table.
type SimStore interface {
	// Get loads a single sim row. Returns store.ErrNotFound if absent.
	Get(ctx context.Context, id int64) (*model.Sim, error)

	// ListActionable returns every sim whose stat_id is in
	// {submitted, running, depend}, the Supervisor's per-tick query.
	ListActionable(ctx context.Context) ([]*model.Sim, error)

	// SetStatus performs a bare status transition. Callers are
	// responsible for only requesting legal transitions (model.LegalTransition).
	SetStatus(ctx context.Context, id int64, status model.Status) error
}

// ParamStore manages the param table.
type ParamStore interface {
	// ListBySim returns all param rows for a sim, in no particular order.
	ListBySim(ctx context.Context, simID int64) ([]*model.Param, error)
}

// FoutStore manages the fout table.
type FoutStore interface {
	// Get returns the fout row for a sim, or (nil, nil) if none exists —
	// fout rows are optional (zero or more per sim in the schema, modeled
	// here as zero-or-one aggregated row per sim, matching how workers
	// consume it).
	Get(ctx context.Context, simID int64) (*model.Fout, error)

	// Upsert creates or replaces the fout row for a sim. Used both by
	// Submit (writing a sim's own outputs) and by the dependency
	// resolver's cache-write.
	Upsert(ctx context.Context, simID int64, files map[string]interface{}) error
}

// JobInfoStore manages the job_info table.
type JobInfoStore interface {
	// Insert records one batch job id for a sim.
	Insert(ctx context.Context, simID int64, jobID int64) error

	// ListBySim returns every batch job id recorded for a sim.
	ListBySim(ctx context.Context, simID int64) ([]int64, error)
}

// SchedulerAdapter abstracts the external batch scheduler: mapping a
// set of batch job ids to a single aggregate verdict.
type SchedulerAdapter interface {
	// Name identifies the scheduler kind ("slurm" or "sge"), for logging.
	Name() string

	// Aggregate queries the status of every job id and reduces the
	// collected raw states to a single verdict using the scheduler's
	// aggregation table. jobIDs must be non-empty.
	Aggregate(ctx context.Context, jobIDs []int64) (Verdict, error)
}

// Verdict is the three-way outcome a SchedulerAdapter reduces a job-id set
// to. Failed/Running/Complete reuse the sim status space's numeric values
// (0/2/3) because the schedulers' aggregation tables are defined in those
// terms, but Verdict is its own type: a scheduler verdict is not itself a
// sim status, it only ever drives one (Monitor only ever writes 3 or 0;
// Running simply means "keep polling").
type Verdict model.Status

const (
	VerdictFailed   Verdict = Verdict(model.StatusFailed)
	VerdictRunning  Verdict = Verdict(model.StatusRunning)
	VerdictComplete Verdict = Verdict(model.StatusComplete)
)

func (v Verdict) String() string {
	return model.Status(v).String()
}

// probeTimeout bounds a single scheduler probe invocation (sacct/qstat/qacct).
const probeTimeout = 30 * time.Second

// ProbeTimeout is exported for adapters constructed outside this package's
// defaults (tests, alternate wiring).
func ProbeTimeout() time.Duration { return probeTimeout }
