// Package scheduler implements the SchedulerAdapter: probing an
// external batch scheduler (Slurm or SGE) for per-job raw state tokens and
// reducing a job-id set to a single aggregate verdict via each scheduler's
// aggregation table.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
)

// ErrUnsupported is returned by Autodetect when the detected scheduler is
// recognized but not implemented (LSF).
var ErrUnsupported = errors.New("scheduler: unsupported scheduler")

// combiner is how an aggregation rule reduces a set of observed tokens
// against its token set: "any" (at least one observed token is in the set)
// or "all" (every observed token is in the set).
type combiner int

const (
	combinerAny combiner = iota
	combinerAll
)

// aggregationRule is one (verdict, combiner, token set) triple.
type aggregationRule struct {
	verdict interfaces.Verdict
	how     combiner
	tokens  map[string]bool
}

func tokenSet(tokens ...string) map[string]bool {
	m := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		m[t] = true
	}
	return m
}

// probeFunc queries the scheduler for one job id's raw state token,
// retrying transient failures itself (5 attempts, 10s back-off for both
// backends).
type probeFunc func(ctx context.Context, jobID int64) (string, error)

// Adapter implements interfaces.SchedulerAdapter by walking a scheduler's
// aggregation table in order over the raw states collected from probe.
type Adapter struct {
	name    string
	probe   probeFunc
	table   []aggregationRule
	limiter *rate.Limiter
}

func (a *Adapter) Name() string { return a.name }

// Aggregate collects the raw state token for every job id, then walks the
// table top-to-bottom; the first rule whose combiner is satisfied over the
// collected tokens wins. The result is a pure function of the multiset of
// tokens and the table: collection order does not affect it.
func (a *Adapter) Aggregate(ctx context.Context, jobIDs []int64) (interfaces.Verdict, error) {
	if len(jobIDs) == 0 {
		return 0, fmt.Errorf("scheduler: Aggregate called with no job ids")
	}

	tokens := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		if err := a.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("scheduler: rate limit wait: %w", err)
		}
		tok, err := a.probe(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("scheduler: probe job %d: %w", id, err)
		}
		tokens = append(tokens, tok)
	}

	return evaluate(a.table, tokens), nil
}

// evaluate applies an aggregation table to a collected token multiset.
func evaluate(table []aggregationRule, tokens []string) interfaces.Verdict {
	for _, r := range table {
		switch r.how {
		case combinerAny:
			for _, t := range tokens {
				if r.tokens[t] {
					return r.verdict
				}
			}
		case combinerAll:
			all := len(tokens) > 0
			for _, t := range tokens {
				if !r.tokens[t] {
					all = false
					break
				}
			}
			if all {
				return r.verdict
			}
		}
	}
	// No rule matched: conservatively keep polling rather than guess.
	return interfaces.VerdictRunning
}

// retryProbe wraps a single-shot probe with the scheduler probe retry
// policy common to both backends (5 attempts, 10s fixed back-off).
func retryProbe(ctx context.Context, logger *common.Logger, name string, attempts int, backoff time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Warn().Str("scheduler", name).Int("attempt", i).Err(lastErr).Msg("scheduler probe retrying")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		tok, err := fn(ctx)
		if err == nil {
			return tok, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("scheduler: %s probe exhausted %d attempts: %w", name, attempts, lastErr)
}
