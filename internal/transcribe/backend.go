// Package transcribe contains the execution backends the orchestrator
// dispatches jobs to: the local whisper.cpp pipeline, the cloud providers,
// and the reduced-capability fallback engine.
package transcribe

import (
	"context"

	"voicescribe/internal/domain"
)

// Request describes one transcription attempt against a single backend.
type Request struct {
	InputPath string
	Language  string

	// OnProgress receives fractional progress in [0,1]. Calls must be
	// cheap; the orchestrator forwards them fire-and-forget.
	OnProgress func(fraction float64)
}

// Backend is a pluggable transcription execution strategy. Implementations
// stream progress through Request.OnProgress and finish with exactly one
// result or error. Cancellation is cooperative via ctx.
type Backend interface {
	Transcribe(ctx context.Context, req Request) (domain.TranscriptionResult, error)
}

// reportProgress forwards a progress fraction when a callback is set.
func reportProgress(req Request, fraction float64) {
	if req.OnProgress != nil {
		req.OnProgress(fraction)
	}
}
