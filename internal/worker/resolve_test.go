package worker

import (
	"context"
	"testing"

	"github.com/mdsuper/mdsuper/internal/model"
)

func TestResolveParentFout_DirectValues(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 1, StatID: model.StatusComplete})
	fs.fouts[1] = map[string]interface{}{"run_input": "/base/parent.tpr"}

	resolved, err := resolveParentFout(context.Background(), fs.Fouts(), fs.Sims(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["run_input"] != "/base/parent.tpr" {
		t.Errorf("unexpected resolved fout: %v", resolved)
	}
}

func TestResolveParentFout_RecursesThroughGrandparent(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 1, StatID: model.StatusComplete})
	fs.fouts[1] = map[string]interface{}{"topology": "/base/grandparent.tpr"}

	fs.putSim(&model.Sim{ID: 2, StatID: model.StatusComplete, ParentID: ptr(1)})
	fs.fouts[2] = map[string]interface{}{"topology": "%topology"}

	resolved, err := resolveParentFout(context.Background(), fs.Fouts(), fs.Sims(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["topology"] != "/base/grandparent.tpr" {
		t.Errorf("expected resolution through grandparent, got %v", resolved)
	}

	// The write-back cache should now hold the concrete value directly.
	cached, _ := fs.Fouts().Get(context.Background(), 2)
	if cached.Files["topology"] != "/base/grandparent.tpr" {
		t.Errorf("expected cache write-back, got %v", cached.Files)
	}
}

func TestResolveParentFout_NoFoutRowReturnsEmpty(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 5, StatID: model.StatusComplete})

	resolved, err := resolveParentFout(context.Background(), fs.Fouts(), fs.Sims(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("expected empty map, got %v", resolved)
	}
}

func TestResolveParentFout_MissingTokenInChainErrors(t *testing.T) {
	fs := newFakeStore()
	fs.putSim(&model.Sim{ID: 1, StatID: model.StatusComplete})
	fs.fouts[1] = map[string]interface{}{"other_key": "/base/x"}

	fs.putSim(&model.Sim{ID: 2, StatID: model.StatusComplete, ParentID: ptr(1)})
	fs.fouts[2] = map[string]interface{}{"topology": "%topology"}

	if _, err := resolveParentFout(context.Background(), fs.Fouts(), fs.Sims(), 2); err == nil {
		t.Error("expected an error when the token is absent from the parent chain")
	}
}

func TestResolveArgDependency(t *testing.T) {
	parent := map[string]interface{}{"run_input": "/base/parent.tpr"}

	v, err := ResolveArgDependency(parent, "run_input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "/base/parent.tpr" {
		t.Errorf("got %v, want /base/parent.tpr", v)
	}

	if _, err := ResolveArgDependency(parent, "missing"); err == nil {
		t.Error("expected an error for a missing file type")
	}
}
