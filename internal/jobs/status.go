// SPDX-License-Identifier: MIT

package jobs

// Status represents the current state of a download job.
//
// Status provides type safety for job state management, preventing
// string-based typos and enabling exhaustive switch statements.
type Status string

const (
	// StatusPending indicates the job is created but not yet started.
	StatusPending Status = "pending"

	// StatusRunning indicates the job is currently executing.
	StatusRunning Status = "running"

	// StatusCompleted indicates the job finished; individual sheets may
	// still have failed (see Progress).
	StatusCompleted Status = "completed"

	// StatusFailed indicates the job aborted with an error.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the job was cancelled.
	StatusCancelled Status = "cancelled"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the status represents a final state. A job in
// a terminal state will not transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this status can move to the target.
//
// Valid transitions:
//   - Pending -> Running, Cancelled
//   - Running -> Completed, Failed, Cancelled
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return target == StatusRunning || target == StatusCancelled
	case StatusRunning:
		return target == StatusCompleted || target == StatusFailed || target == StatusCancelled
	default:
		return false
	}
}
