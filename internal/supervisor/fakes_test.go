package supervisor

import (
	"context"
	"sync"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
	"github.com/mdsuper/mdsuper/internal/store"
)

// fakeStore is a minimal in-memory interfaces.StoreManager, scoped to what
// the Supervisor's tick loop itself touches (sims, params). Fouts and job
// infos are inert stubs; workers spawned by the package under test run as
// real goroutines against this store, and the tests assert on active set
// bookkeeping, validation, reaping, and the status a spawned Submit worker
// leaves behind.
type fakeStore struct {
	mu     sync.Mutex
	sims   map[int64]*model.Sim
	params map[int64][]*model.Param
}

func newFakeStore() *fakeStore {
	return &fakeStore{sims: make(map[int64]*model.Sim), params: make(map[int64][]*model.Param)}
}

func (f *fakeStore) Sims() interfaces.SimStore         { return (*fakeSimStore)(f) }
func (f *fakeStore) Params() interfaces.ParamStore     { return (*fakeParamStore)(f) }
func (f *fakeStore) Fouts() interfaces.FoutStore       { return (*fakeFoutStore)(f) }
func (f *fakeStore) JobInfos() interfaces.JobInfoStore { return (*fakeJobInfoStore)(f) }
func (f *fakeStore) Close() error                      { return nil }

func (f *fakeStore) putSim(s *model.Sim) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sims[s.ID] = s
}

func (f *fakeStore) statusOf(id int64) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sims[id].StatID
}

type fakeSimStore fakeStore

func (f *fakeSimStore) Get(ctx context.Context, id int64) (*model.Sim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sims[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSimStore) ListActionable(ctx context.Context) ([]*model.Sim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Sim
	for _, s := range f.sims {
		if s.StatID.Actionable() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSimStore) SetStatus(ctx context.Context, id int64, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sims[id]
	if !ok {
		return store.ErrNotFound
	}
	s.StatID = status
	return nil
}

type fakeParamStore fakeStore

func (f *fakeParamStore) ListBySim(ctx context.Context, simID int64) ([]*model.Param, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[simID], nil
}

type fakeFoutStore fakeStore

func (f *fakeFoutStore) Get(ctx context.Context, simID int64) (*model.Fout, error) { return nil, nil }
func (f *fakeFoutStore) Upsert(ctx context.Context, simID int64, files map[string]interface{}) error {
	return nil
}

type fakeJobInfoStore fakeStore

func (f *fakeJobInfoStore) Insert(ctx context.Context, simID int64, jobID int64) error { return nil }
func (f *fakeJobInfoStore) ListBySim(ctx context.Context, simID int64) ([]int64, error) {
	return nil, nil
}

// fakeScheduler satisfies interfaces.SchedulerAdapter without ever being
// exercised by these tests: MonitorWorker bodies that reach it run in a real
// goroutine, but the scripted sims here transition out before polling
// matters to the assertions.
type fakeScheduler struct{}

func (fakeScheduler) Name() string { return "fake" }
func (fakeScheduler) Aggregate(ctx context.Context, jobIDs []int64) (interfaces.Verdict, error) {
	return interfaces.VerdictRunning, nil
}
