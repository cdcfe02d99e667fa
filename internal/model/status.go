// Package model defines the persistent job state machine: the status
// lookup, the sim/param/fout/job_info row shapes, and the legal transition
// table. It holds pure definitions only — no store access, no I/O.
package model

import "fmt"

// Status is one of the seven lifecycle states a sim row can occupy. The
// integer values are a wire format shared with the submission collaborator
// and MUST NOT change.
type Status int

const (
	StatusFailed       Status = 0
	StatusSubmitted    Status = 1
	StatusRunning      Status = 2
	StatusComplete     Status = 3
	StatusDepend       Status = 4
	StatusDependFailed Status = 5
	StatusUpdating     Status = 6
)

// String renders the status the way log lines and error messages want it.
func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSubmitted:
		return "submitted"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusDepend:
		return "depend"
	case StatusDependFailed:
		return "depend_failed"
	case StatusUpdating:
		return "updating"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether a status is sticky — once reached, a sim never
// leaves it.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusComplete, StatusDependFailed:
		return true
	default:
		return false
	}
}

// Actionable reports whether the Supervisor loop should ever consider a sim
// in this status for spawning a worker.
func (s Status) Actionable() bool {
	switch s {
	case StatusSubmitted, StatusRunning, StatusDepend:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates every (source, dest) pair the lifecycle
// allows. No code outside this file should decide whether a transition is
// legal.
var legalTransitions = map[Status]map[Status]bool{
	StatusUpdating: {
		StatusSubmitted: true,
		StatusDepend:    true,
	},
	StatusSubmitted: {
		StatusRunning:  true,
		StatusComplete: true,
		StatusFailed:   true,
	},
	StatusRunning: {
		StatusComplete: true,
		StatusFailed:   true,
	},
	StatusDepend: {
		StatusSubmitted:    true,
		StatusDependFailed: true,
		StatusFailed:       true, // Supervisor validation failure
	},
}

// LegalTransition reports whether moving a sim from `from` to `to` is one
// of the transitions enumerated in legalTransitions.
func LegalTransition(from, to Status) bool {
	dests, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return dests[to]
}
