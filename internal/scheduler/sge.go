package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
)

// sgeActiveStates are the qstat state letters that mean the job is still
// queued or running in some form.
var sgeActiveStates = tokenSet("qw", "hqw", "hRwq", "r", "t", "Rr", "Rt", "s", "ts", "S", "tS")

// sgeAggregationTable reduces the normalized tokens {f, r, c} produced by
// sgeProbe. Unlike Slurm, SGE's own state letters are pre-reduced to this
// three-token alphabet before reaching the table.
var sgeAggregationTable = []aggregationRule{
	{verdict: interfaces.VerdictFailed, how: combinerAny, tokens: tokenSet("f")},
	{verdict: interfaces.VerdictRunning, how: combinerAny, tokens: tokenSet("r")},
	{verdict: interfaces.VerdictComplete, how: combinerAll, tokens: tokenSet("c")},
}

// NewSGEAdapter constructs the SGE SchedulerAdapter.
func NewSGEAdapter(logger *common.Logger, rateLimit int) interfaces.SchedulerAdapter {
	if rateLimit <= 0 {
		rateLimit = 5
	}
	return &Adapter{
		name:    "sge",
		table:   sgeAggregationTable,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		probe: func(ctx context.Context, jobID int64) (string, error) {
			return retryProbe(ctx, logger, "sge", 5, 10*time.Second, func(ctx context.Context) (string, error) {
				return sgeProbe(ctx, jobID)
			})
		},
	}
}

// sgeProbe is a two-step probe: first `qstat` to see if the
// job is still in the active queue (any of sgeActiveStates maps to "r"),
// and only once it has left the queue does `qacct -j <id>` give a
// definitive exit_status, mapped to "c" (zero) or "f" (nonzero).
func sgeProbe(ctx context.Context, jobID int64) (string, error) {
	active, err := qstatProbe(ctx, jobID)
	if err != nil {
		return "", err
	}
	if active {
		return "r", nil
	}
	return qacctProbe(ctx, jobID)
}

func qstatProbe(ctx context.Context, jobID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, interfaces.ProbeTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "qstat", "-j", strconv.FormatInt(jobID, 10))
	out, err := cmd.CombinedOutput()
	if err != nil {
		// qstat exits nonzero when the job id is unknown, which is the
		// normal way a finished job leaves the active queue.
		return false, nil
	}
	return parseQstatOutput(out, jobID), nil
}

// parseQstatOutput reports whether jobID appears in qstat's listing with a
// state letter in sgeActiveStates, split apart so the parsing can be tested
// without a real qstat binary on PATH.
func parseQstatOutput(out []byte, jobID int64) bool {
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		if fields[0] != strconv.FormatInt(jobID, 10) {
			continue
		}
		if sgeActiveStates[fields[4]] {
			return true
		}
	}
	return false
}

func qacctProbe(ctx context.Context, jobID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, interfaces.ProbeTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "qacct", "-j", strconv.FormatInt(jobID, 10))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("qacct: %w", err)
	}
	return parseQacctOutput(out, jobID)
}

// parseQacctOutput extracts the normalized "c"/"f" token from qacct's
// exit_status field, split apart so the parsing can be tested without a
// real qacct binary on PATH.
func parseQacctOutput(out []byte, jobID int64) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "exit_status") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return "", fmt.Errorf("qacct: malformed exit_status line %q", line)
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("qacct: non-numeric exit_status %q: %w", fields[1], err)
		}
		if code == 0 {
			return "c", nil
		}
		return "f", nil
	}
	return "", fmt.Errorf("qacct: no exit_status field for job %d", jobID)
}
