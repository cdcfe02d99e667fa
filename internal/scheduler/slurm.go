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

// slurmAggregationTable is evaluated top to bottom:
// any failure dominates; otherwise any running dominates; completion
// requires unanimity.
var slurmAggregationTable = []aggregationRule{
	{verdict: interfaces.VerdictFailed, how: combinerAny, tokens: tokenSet("FAILED", "PREEMPTED", "SUSPENDED", "STOPPED")},
	{verdict: interfaces.VerdictRunning, how: combinerAny, tokens: tokenSet("RUNNING", "COMPLETING", "PENDING")},
	{verdict: interfaces.VerdictComplete, how: combinerAll, tokens: tokenSet("COMPLETED")},
}

// NewSlurmAdapter constructs the Slurm SchedulerAdapter. rateLimit bounds
// how many sacct invocations per second the adapter issues; accounting
// daemons throttle rapid-fire polling the same way a REST API would.
func NewSlurmAdapter(logger *common.Logger, rateLimit int) interfaces.SchedulerAdapter {
	if rateLimit <= 0 {
		rateLimit = 5
	}
	return &Adapter{
		name:    "slurm",
		table:   slurmAggregationTable,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		probe: func(ctx context.Context, jobID int64) (string, error) {
			return retryProbe(ctx, logger, "slurm", 5, 10*time.Second, func(ctx context.Context) (string, error) {
				return sacctProbe(ctx, jobID)
			})
		},
	}
}

// sacctProbe runs `sacct -j <id> --delimiter=',' --parsable2 --format=JobID,State,ExitCode`
// and takes the second line's State field as the raw state.
func sacctProbe(ctx context.Context, jobID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, interfaces.ProbeTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "sacct",
		"-j", strconv.FormatInt(jobID, 10),
		"--delimiter=,",
		"--parsable2",
		"--format=JobID,State,ExitCode",
	)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("sacct: %w", err)
	}
	return parseSacctOutput(out, jobID)
}

// parseSacctOutput extracts the raw state token from sacct's second output
// line (the first data row after the header), split apart so the parsing
// can be tested without a real sacct binary on PATH.
func parseSacctOutput(out []byte, jobID int64) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) < 2 {
		return "", fmt.Errorf("sacct: expected at least 2 lines of output for job %d, got %d", jobID, len(lines))
	}

	fields := strings.Split(lines[1], ",")
	if len(fields) < 2 {
		return "", fmt.Errorf("sacct: malformed output line %q", lines[1])
	}
	// State may carry a trailing qualifier ("CANCELLED by 1000"); only the
	// leading token is the raw state.
	state := strings.Fields(strings.TrimSpace(fields[1]))[0]
	return state, nil
}
