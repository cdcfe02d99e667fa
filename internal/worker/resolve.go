package worker

import (
	"context"
	"fmt"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// resolveParentFout recursively resolves sim's parent chain into a single
// fully-resolved fout map, walking upward until a value is no longer a
// "%<type>" token. Any fout row whose
// resolution required following a token is written back with Upsert,
// short-circuiting future walks through it (a caching
// decision, not a correctness one).
func resolveParentFout(ctx context.Context, fouts interfaces.FoutStore, sims interfaces.SimStore, simID int64) (map[string]interface{}, error) {
	fout, err := fouts.Get(ctx, simID)
	if err != nil {
		return nil, fmt.Errorf("worker: load fout for sim %d: %w", simID, err)
	}
	if fout == nil {
		return map[string]interface{}{}, nil
	}

	resolved := make(map[string]interface{}, len(fout.Files))
	wroteBack := false
	for fileType, v := range fout.Files {
		rv, changed, err := resolveFoutValue(ctx, fouts, sims, simID, fileType, v)
		if err != nil {
			return nil, err
		}
		resolved[fileType] = rv
		if changed {
			wroteBack = true
		}
	}

	if wroteBack {
		if err := fouts.Upsert(ctx, simID, resolved); err != nil {
			return nil, fmt.Errorf("worker: write back resolved fout for sim %d: %w", simID, err)
		}
	}
	return resolved, nil
}

// resolveFoutValue resolves a single fout entry, following "%<type>" tokens
// up the parent chain until a concrete value is found. changed reports
// whether the value differs from what was stored (i.e. a token was
// followed), which drives the cache write-back in the caller.
func resolveFoutValue(ctx context.Context, fouts interfaces.FoutStore, sims interfaces.SimStore, simID int64, fileType string, v interface{}) (interface{}, bool, error) {
	tok, ok := model.DependencyToken(v)
	if !ok {
		return v, false, nil
	}

	sim, err := sims.Get(ctx, simID)
	if err != nil {
		return nil, false, fmt.Errorf("worker: load sim %d while resolving %q: %w", simID, fileType, err)
	}
	if !sim.HasParent() {
		return nil, false, fmt.Errorf("worker: dependency outfile missing: sim %d has no parent to resolve %q=%q", simID, fileType, v)
	}

	parentResolved, err := resolveParentFout(ctx, fouts, sims, *sim.ParentID)
	if err != nil {
		return nil, false, err
	}
	pv, ok := parentResolved[tok]
	if !ok {
		return nil, false, fmt.Errorf("worker: dependency outfile missing: %q not found in parent chain of sim %d", tok, simID)
	}
	return pv, true, nil
}

// ResolveArgDependency looks up a "%<type>" token directly against an
// already-resolved parent fout map, the form Submit uses for param.args
// for param.args. Unlike resolveFoutValue it never recurses
// further: parentFout must already be fully resolved.
func ResolveArgDependency(parentFout map[string]interface{}, fileType string) (interface{}, error) {
	v, ok := parentFout[fileType]
	if !ok {
		return nil, fmt.Errorf("worker: dependency outfile missing: %q not found in resolved parent fout", fileType)
	}
	return v, nil
}
