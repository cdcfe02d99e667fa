package scheduler

import (
	"fmt"
	"os/exec"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
)

// Autodetect elects a SchedulerAdapter by probing for each scheduler's
// signature binary on PATH, in order: Slurm's sinfo, then SGE's qstat,
// then LSF's bqueue. The first one found wins; LSF is recognized
// but not implemented and returns ErrUnsupported.
func Autodetect(logger *common.Logger, rateLimit int) (interfaces.SchedulerAdapter, error) {
	switch {
	case binaryExists("sinfo"):
		logger.Info().Str("scheduler", "slurm").Msg("scheduler autodetected")
		return NewSlurmAdapter(logger, rateLimit), nil
	case binaryExists("qstat"):
		logger.Info().Str("scheduler", "sge").Msg("scheduler autodetected")
		return NewSGEAdapter(logger, rateLimit), nil
	case binaryExists("bqueue"):
		return nil, fmt.Errorf("scheduler: detected LSF: %w", ErrUnsupported)
	default:
		return nil, fmt.Errorf("scheduler: no supported scheduler binary found on PATH")
	}
}

// FromName constructs a SchedulerAdapter by explicit name, bypassing
// autodetection (the -q/--queue override).
func FromName(name string, logger *common.Logger, rateLimit int) (interfaces.SchedulerAdapter, error) {
	switch name {
	case "slurm":
		return NewSlurmAdapter(logger, rateLimit), nil
	case "sge":
		return NewSGEAdapter(logger, rateLimit), nil
	case "lsf":
		return nil, fmt.Errorf("scheduler: requested LSF: %w", ErrUnsupported)
	default:
		return nil, fmt.Errorf("scheduler: unknown scheduler name %q", name)
	}
}

func binaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
