package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/mdsuper/mdsuper/internal/command"
	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// SubmitWorker resolves a sim's param args against
// its parent's fout chain, invokes the domain command, and records the
// outcome. It owns the sim for exactly the 1→{2,3,0} transition.
type SubmitWorker struct {
	SimID   int64
	Store   interfaces.StoreManager
	Invoker command.Invoker
	Logger  *common.Logger

	// NTrials and Backoff override the retry policy for tests; zero values
	// fall back to the built-in defaults (3 attempts, 5s back-off).
	NTrials int
	Backoff time.Duration
}

func (w *SubmitWorker) Run(ctx context.Context, done chan<- Completion) {
	runWithCrashBoundary(w.Logger, w.SimID, done, func() {
		w.run(ctx)
		done <- Completion{SimID: w.SimID}
	})
}

func (w *SubmitWorker) run(ctx context.Context) {
	log := w.Logger

	params, err := w.Store.Params().ListBySim(ctx, w.SimID)
	if err != nil {
		log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to load params")
		return
	}
	if len(params) == 0 {
		// The Supervisor already validates this before spawning; reaching
		// here with no params means the row changed under us.
		log.Error().Int("sim_id", int(w.SimID)).Msg("submit: no param rows at run time")
		w.fail(ctx)
		return
	}
	p := params[0]
	if !p.Cmd.Valid() {
		log.Error().Int("sim_id", int(w.SimID)).Str("cmd", string(p.Cmd)).Msg("submit: unrecognized domain command")
		w.fail(ctx)
		return
	}

	resolvedArgs, err := w.resolveArgs(ctx, p)
	if err != nil {
		log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: arg resolution failed")
		w.fail(ctx)
		return
	}

	stdout, ok := w.invoke(ctx, p.Cmd, p.Path, resolvedArgs)
	if !ok {
		w.fail(ctx)
		return
	}

	outputs := command.OutputsFor(p.Cmd, p.Path, resolvedArgs, stdout)
	declared, err := w.Store.Fouts().Get(ctx, w.SimID)
	if err != nil {
		log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to load declared fout")
		w.fail(ctx)
		return
	}
	var userFout map[string]interface{}
	if declared != nil {
		userFout = declared.Files
	}
	merged := mergeFout(userFout, outputs)
	if err := w.Store.Fouts().Upsert(ctx, w.SimID, merged); err != nil {
		log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to persist fout")
		w.fail(ctx)
		return
	}

	switch p.Cmd {
	case model.CmdGSubmit:
		jobIDs, err := command.ExtractJobIDs(stdout)
		if err != nil {
			log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to extract batch job ids")
			w.fail(ctx)
			return
		}
		for _, id := range jobIDs {
			if err := w.Store.JobInfos().Insert(ctx, w.SimID, id); err != nil {
				log.Error().Int("sim_id", int(w.SimID)).Err(err).Int("job_id", int(id)).Msg("submit: failed to record job id")
				w.fail(ctx)
				return
			}
		}
		if err := w.Store.Sims().SetStatus(ctx, w.SimID, model.StatusRunning); err != nil {
			log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to transition to running")
			return
		}
		log.Info().Int("sim_id", int(w.SimID)).Str("job_ids", fmt.Sprintf("%v", jobIDs)).Msg("submit: dispatched to scheduler")
	case model.CmdGrompp, model.CmdShell:
		if err := w.Store.Sims().SetStatus(ctx, w.SimID, model.StatusComplete); err != nil {
			log.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to transition to complete")
			return
		}
		log.Info().Int("sim_id", int(w.SimID)).Msg("submit: local command complete")
	}
}

// resolveArgs walks a param's raw args, resolving
// dependency tokens against the fully-resolved parent fout chain and
// rewriting relative file arguments against the sim's base path.
func (w *SubmitWorker) resolveArgs(ctx context.Context, p *model.Param) (map[string]string, error) {
	var parentFout map[string]interface{}
	if sim, err := w.Store.Sims().Get(ctx, w.SimID); err != nil {
		return nil, fmt.Errorf("load sim: %w", err)
	} else if sim.HasParent() {
		pf, err := resolveParentFout(ctx, w.Store.Fouts(), w.Store.Sims(), *sim.ParentID)
		if err != nil {
			return nil, err
		}
		parentFout = pf
	}

	resolved := make(map[string]string, len(p.Args))
	for key, raw := range p.Args {
		if tok, ok := model.DependencyToken(raw); ok {
			if parentFout == nil {
				return nil, fmt.Errorf("dependency outfile missing: sim %d has no parent to resolve %q", w.SimID, key)
			}
			v, err := ResolveArgDependency(parentFout, tok)
			if err != nil {
				return nil, err
			}
			resolved[key] = fmt.Sprintf("%v", v)
			continue
		}
		if s, isStr := raw.(string); isStr && command.IsFileArg(p.Cmd, key) {
			resolved[key] = command.ResolveFileArg(p.Path, s)
			continue
		}
		resolved[key] = fmt.Sprintf("%v", raw)
	}
	return resolved, nil
}

// invoke runs the domain command up to NTrials times with Backoff between
// attempts. Returns the last stdout and whether any attempt
// exited 0.
func (w *SubmitWorker) invoke(ctx context.Context, cmd model.Cmd, path string, args map[string]string) (string, bool) {
	trials := w.NTrials
	if trials <= 0 {
		trials = 3
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var stdout string
	var err error
	for attempt := 1; attempt <= trials; attempt++ {
		stdout, err = w.Invoker.Invoke(ctx, cmd, path, args)
		if err == nil {
			return stdout, true
		}
		w.Logger.Warn().Int("sim_id", int(w.SimID)).Err(err).Int("attempt", attempt).Str("stdout", stdout).Msg("submit: command attempt failed")
		if attempt < trials {
			select {
			case <-ctx.Done():
				return stdout, false
			case <-time.After(backoff):
			}
		}
	}
	w.Logger.Error().Int("sim_id", int(w.SimID)).Str("stdout", stdout).Msg("submit: command exhausted all attempts")
	return stdout, false
}

func (w *SubmitWorker) fail(ctx context.Context) {
	if err := w.Store.Sims().SetStatus(ctx, w.SimID, model.StatusFailed); err != nil {
		w.Logger.Error().Int("sim_id", int(w.SimID)).Err(err).Msg("submit: failed to transition to failed")
	}
}

// mergeFout combines the submitter-declared fout row with command-derived outputs;
// command-derived entries win on key collision since they reflect what the
// invocation actually produced.
func mergeFout(user, derived map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(user)+len(derived))
	for k, v := range user {
		out[k] = v
	}
	for k, v := range derived {
		out[k] = v
	}
	return out
}
