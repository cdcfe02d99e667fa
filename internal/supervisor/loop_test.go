package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/mdsuper/mdsuper/internal/command"
	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/model"
	"github.com/mdsuper/mdsuper/internal/worker"
)

func testLogger() *common.Logger { return common.NewSilentLogger() }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// A submitted sim
// with zero param rows must be failed rather than spawned.
func TestLoop_InvalidatesSimWithNoParams(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 1, StatID: model.StatusSubmitted})

	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{TickInterval: time.Hour})
	loop.tick(context.Background())

	if got := fs.statusOf(1); got != model.StatusFailed {
		t.Errorf("expected sim with no params to be failed, got %s", got)
	}
}

// A depend sim whose parent row does not exist must be failed rather
// than spawned.
func TestLoop_InvalidatesDependSimWithMissingParent(t *testing.T) {
	fs := newFakeStore()
	missing := int64(999)
	fs.putSim(&model.Sim{ID: 2, StatID: model.StatusDepend, ParentID: &missing})
	fs.params[2] = []*model.Param{{SimID: 2, Cmd: model.CmdShell}}

	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{TickInterval: time.Hour})
	loop.tick(context.Background())

	if got := fs.statusOf(2); got != model.StatusFailed {
		t.Errorf("expected depend sim with missing parent to be failed, got %s", got)
	}
}

// A sim already in the active set must not be spawned again on a
// subsequent tick.
func TestLoop_OwnedSimIsNotRespawned(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 3, StatID: model.StatusRunning})

	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{TickInterval: time.Hour, MonitorInterval: time.Hour})
	loop.active[3] = func() {}

	loop.tick(context.Background())

	if _, owned := loop.active[3]; !owned {
		t.Fatal("expected sim to remain in the active set")
	}
}

// Reaping a completion must release the sim's active-set slot and cancel
// its worker context.
func TestLoop_ReapRemovesCompletedFromActiveSet(t *testing.T) {
	fs := newFakeStore()
	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{})

	canceled := false
	loop.active[7] = func() { canceled = true }
	loop.done <- worker.Completion{SimID: 7}

	loop.reap()

	if _, owned := loop.active[7]; owned {
		t.Error("expected sim to be removed from the active set after reap")
	}
	if !canceled {
		t.Error("expected the sim's cancel func to be invoked")
	}
}

// Run must return promptly once the shutdown context is cancelled.
func TestLoop_RunExitsOnContextCancellation(t *testing.T) {
	fs := newFakeStore()
	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{TickInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	runReturned := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(runReturned)
	}()

	cancel()
	select {
	case <-runReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// A valid submitted sim gets a Submit worker, which drives it to complete.
func TestLoop_SpawnsSubmitWorkerForSubmittedSim(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 8, StatID: model.StatusSubmitted})
	fs.params[8] = []*model.Param{{SimID: 8, Path: "", Cmd: model.CmdShell, Args: map[string]model.ArgValue{"cmd": "true"}}}

	loop := New(fs, fakeScheduler{}, command.NewInvoker(time.Second, nil), testLogger(), Config{TickInterval: time.Hour, SubmitNTrials: 1, SubmitBackoff: time.Millisecond})
	loop.tick(context.Background())

	if _, owned := loop.active[8]; !owned {
		t.Fatal("expected sim to be recorded in the active set after spawn")
	}

	waitFor(t, 2*time.Second, func() bool { return fs.statusOf(8) == model.StatusComplete })
	loop.Wait()
}
