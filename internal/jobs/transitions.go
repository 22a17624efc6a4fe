package jobs

import (
	"errors"
	"fmt"

	"voicescribe/internal/domain"
)

// ErrInvalidTransition reports a status edge the job state machine forbids.
// Such a transition indicates a lost lock or duplicate dispatch, so callers
// must surface it instead of swallowing it.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ValidateTransition checks one status edge and returns a descriptive
// ErrInvalidTransition when the edge is not allowed.
func ValidateTransition(from, to domain.JobStatus) error {
	if !validTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsActive reports whether a status represents in-flight execution.
func IsActive(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusRecording, domain.JobStatusTranscribing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a status ends the job lifecycle.
func IsTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	default:
		return false
	}
}

// validTransition enforces the allowed job state machine edges.
// failed -> queued (explicit retry) is the only backward edge; cancelled is
// reachable from queued and active statuses only.
func validTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		// queued -> failed covers jobs with no eligible backend candidate.
		return to == domain.JobStatusRecording ||
			to == domain.JobStatusTranscribing ||
			to == domain.JobStatusFailed ||
			to == domain.JobStatusCancelled
	case domain.JobStatusRecording:
		return to == domain.JobStatusTranscribing ||
			to == domain.JobStatusFailed ||
			to == domain.JobStatusCancelled
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusCompleted ||
			to == domain.JobStatusFailed ||
			to == domain.JobStatusCancelled
	case domain.JobStatusFailed:
		return to == domain.JobStatusQueued
	default:
		return false
	}
}
