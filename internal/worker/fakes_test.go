package worker

import (
	"context"
	"sync"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
	"github.com/mdsuper/mdsuper/internal/store"
)

// fakeStore is an in-memory interfaces.StoreManager used across the worker
// package's tests.
type fakeStore struct {
	mu       sync.Mutex
	sims     map[int64]*model.Sim
	params   map[int64][]*model.Param
	fouts    map[int64]map[string]interface{}
	jobInfos map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sims:     make(map[int64]*model.Sim),
		params:   make(map[int64][]*model.Param),
		fouts:    make(map[int64]map[string]interface{}),
		jobInfos: make(map[int64][]int64),
	}
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

func (f *fakeFoutStore) Get(ctx context.Context, simID int64) (*model.Fout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.fouts[simID]
	if !ok {
		return nil, nil
	}
	return &model.Fout{SimID: simID, Files: files}, nil
}

func (f *fakeFoutStore) Upsert(ctx context.Context, simID int64, files map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fouts[simID] = files
	return nil
}

type fakeJobInfoStore fakeStore

func (f *fakeJobInfoStore) Insert(ctx context.Context, simID int64, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobInfos[simID] = append(f.jobInfos[simID], jobID)
	return nil
}

func (f *fakeJobInfoStore) ListBySim(ctx context.Context, simID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobInfos[simID], nil
}

// fakeInvoker lets tests script the domain command's outcome per call.
type fakeInvoker struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, cmd model.Cmd, path string, args map[string]string) (string, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, cmd model.Cmd, path string, args map[string]string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, cmd, path, args)
}

// fakeScheduler lets tests script the aggregate verdict sequence per call.
type fakeScheduler struct {
	mu      sync.Mutex
	verdict []interfaces.Verdict
	i       int
}

func (f *fakeScheduler) Name() string { return "fake" }

func (f *fakeScheduler) Aggregate(ctx context.Context, jobIDs []int64) (interfaces.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.i >= len(f.verdict) {
		return f.verdict[len(f.verdict)-1], nil
	}
	v := f.verdict[f.i]
	f.i++
	return v, nil
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func ptr(v int64) *int64 { return &v }
