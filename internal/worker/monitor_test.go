package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

func TestMonitorWorker_CompletesOnVerdict(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 1, StatID: model.StatusRunning})
	fs.jobInfos[1] = []int64{100, 101}

	sched := &fakeScheduler{verdict: []interfaces.Verdict{interfaces.VerdictRunning, interfaces.VerdictComplete}}

	w := &MonitorWorker{SimID: 1, Store: fs, Scheduler: sched, Logger: testLogger(), Interval: time.Millisecond}
	done := make(chan Completion, 1)
	w.Run(context.Background(), done)
	<-done

	if got := fs.statusOf(1); got != model.StatusComplete {
		t.Errorf("expected sim to reach complete, got %s", got)
	}
}

func TestMonitorWorker_FailedVerdict(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 2, StatID: model.StatusRunning})
	fs.jobInfos[2] = []int64{200}

	sched := &fakeScheduler{verdict: []interfaces.Verdict{interfaces.VerdictFailed}}

	w := &MonitorWorker{SimID: 2, Store: fs, Scheduler: sched, Logger: testLogger(), Interval: time.Millisecond}
	done := make(chan Completion, 1)
	w.Run(context.Background(), done)
	<-done

	if got := fs.statusOf(2); got != model.StatusFailed {
		t.Errorf("expected sim to fail, got %s", got)
	}
}

func TestMonitorWorker_NoJobIDs(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 3, StatID: model.StatusRunning})

	w := &MonitorWorker{SimID: 3, Store: fs, Scheduler: &fakeScheduler{}, Logger: testLogger(), Interval: time.Millisecond}
	done := make(chan Completion, 1)
	w.Run(context.Background(), done)
	<-done

	if got := fs.statusOf(3); got != model.StatusRunning {
		t.Errorf("expected status unchanged with no job ids, got %s", got)
	}
}

func TestMonitorWorker_CleanupRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	scriptPath := dir + "/run.sh"
	logPath := dir + "/run.log"
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("log\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 4, StatID: model.StatusRunning})
	fs.jobInfos[4] = []int64{400}
	fs.fouts[4] = map[string]interface{}{
		model.FoutKeyJScripts: []string{scriptPath},
		model.FoutKeyJLogs:    []string{logPath},
		"run_input":           "/keep/this.tpr",
	}

	sched := &fakeScheduler{verdict: []interfaces.Verdict{interfaces.VerdictComplete}}
	w := &MonitorWorker{SimID: 4, Store: fs, Scheduler: sched, Logger: testLogger(), Clean: true, Interval: time.Millisecond}
	done := make(chan Completion, 1)
	w.Run(context.Background(), done)
	<-done

	if _, err := os.Stat(scriptPath); !os.IsNotExist(err) {
		t.Errorf("expected script file to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Errorf("expected log file to be removed, stat err = %v", err)
	}
	fout, _ := fs.Fouts().Get(context.Background(), 4)
	if _, ok := fout.Files[model.FoutKeyJScripts]; ok {
		t.Error("expected JSCRIPTS key to be dropped after cleanup")
	}
	if fout.Files["run_input"] != "/keep/this.tpr" {
		t.Error("expected unrelated fout keys to survive cleanup")
	}
}
