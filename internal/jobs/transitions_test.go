package jobs

import (
	"errors"
	"testing"

	"voicescribe/internal/domain"
)

// TestValidTransitions walks every legal lifecycle edge.
func TestValidTransitions(t *testing.T) {
	edges := []struct {
		from, to domain.JobStatus
	}{
		{domain.JobStatusQueued, domain.JobStatusRecording},
		{domain.JobStatusQueued, domain.JobStatusTranscribing},
		{domain.JobStatusQueued, domain.JobStatusFailed},
		{domain.JobStatusQueued, domain.JobStatusCancelled},
		{domain.JobStatusRecording, domain.JobStatusTranscribing},
		{domain.JobStatusRecording, domain.JobStatusFailed},
		{domain.JobStatusRecording, domain.JobStatusCancelled},
		{domain.JobStatusTranscribing, domain.JobStatusCompleted},
		{domain.JobStatusTranscribing, domain.JobStatusFailed},
		{domain.JobStatusTranscribing, domain.JobStatusCancelled},
		{domain.JobStatusFailed, domain.JobStatusQueued},
	}

	for _, edge := range edges {
		if err := ValidateTransition(edge.from, edge.to); err != nil {
			t.Fatalf("transition %s -> %s: %v", edge.from, edge.to, err)
		}
	}
}

// TestInvalidTransitions rejects edges the lifecycle forbids.
func TestInvalidTransitions(t *testing.T) {
	edges := []struct {
		from, to domain.JobStatus
	}{
		{domain.JobStatusQueued, domain.JobStatusCompleted},
		{domain.JobStatusRecording, domain.JobStatusCompleted},
		{domain.JobStatusCompleted, domain.JobStatusQueued},
		{domain.JobStatusCompleted, domain.JobStatusFailed},
		{domain.JobStatusCancelled, domain.JobStatusQueued},
		{domain.JobStatusCancelled, domain.JobStatusTranscribing},
		{domain.JobStatusFailed, domain.JobStatusTranscribing},
		{domain.JobStatusFailed, domain.JobStatusCompleted},
	}

	for _, edge := range edges {
		err := ValidateTransition(edge.from, edge.to)
		if err == nil {
			t.Fatalf("transition %s -> %s: expected error", edge.from, edge.to)
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("transition %s -> %s: error = %v, want ErrInvalidTransition", edge.from, edge.to, err)
		}
	}
}

// TestStatusClassification checks active and terminal status helpers.
func TestStatusClassification(t *testing.T) {
	if !IsActive(domain.JobStatusRecording) || !IsActive(domain.JobStatusTranscribing) {
		t.Fatal("recording and transcribing should be active")
	}
	if IsActive(domain.JobStatusQueued) {
		t.Fatal("queued should not be active")
	}

	for _, status := range []domain.JobStatus{
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	} {
		if !IsTerminal(status) {
			t.Fatalf("%s should be terminal", status)
		}
	}
	if IsTerminal(domain.JobStatusTranscribing) {
		t.Fatal("transcribing should not be terminal")
	}
}
