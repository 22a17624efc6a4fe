// Package live implements continuous, non-file-bound transcription: a
// session controller holding partial/final transcript buffers over a
// swappable streaming engine.
package live

import (
	"context"
	"log"
	"sync"
	"time"

	"voicescribe/internal/audio"
)

// Engine is a streaming-capable transcription backend. Start begins
// delivering text through the callbacks: onPartial replaces the current
// in-flight hypothesis wholesale, onFinal commits text permanently. Stop
// flushes any outstanding text through onFinal and releases the audio tap.
type Engine interface {
	Name() string
	Start(ctx context.Context, onPartial, onFinal func(text string)) error
	Stop() error
}

// ChunkTranscriber turns one span of captured samples into text.
type ChunkTranscriber func(ctx context.Context, samples []float32, sampleRate uint32) (string, error)

// ChunkedWhisperEngine approximates streaming over a batch model: it
// drains the microphone tap on a fixed cadence, re-transcribes the open
// chunk as the partial hypothesis, and commits the chunk as final text
// once it reaches the configured length.
type ChunkedWhisperEngine struct {
	tap        audio.Tap
	transcribe ChunkTranscriber
	interval   time.Duration
	chunkLen   time.Duration
	logf       func(format string, args ...any)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChunkedWhisperEngine builds the engine over a capture tap.
func NewChunkedWhisperEngine(tap audio.Tap, transcribe ChunkTranscriber) *ChunkedWhisperEngine {
	return &ChunkedWhisperEngine{
		tap:        tap,
		transcribe: transcribe,
		interval:   time.Second,
		chunkLen:   8 * time.Second,
		logf:       log.Printf,
	}
}

// NewChunkedWhisperEngineForTests builds an engine with a fast cadence
// and an injectable log sink.
func NewChunkedWhisperEngineForTests(
	tap audio.Tap,
	transcribe ChunkTranscriber,
	interval, chunkLen time.Duration,
	logf func(format string, args ...any),
) *ChunkedWhisperEngine {
	return &ChunkedWhisperEngine{
		tap:        tap,
		transcribe: transcribe,
		interval:   interval,
		chunkLen:   chunkLen,
		logf:       logf,
	}
}

// Name identifies the engine for selector-driven engine choice.
func (e *ChunkedWhisperEngine) Name() string { return "local-stream" }

// Start opens the tap and launches the chunking loop.
func (e *ChunkedWhisperEngine) Start(ctx context.Context, onPartial, onFinal func(text string)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		return ErrSessionActive
	}
	if err := e.tap.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go e.loop(runCtx, done, onPartial, onFinal)
	return nil
}

// Stop ends the loop, flushes remaining audio as final text, and releases
// the tap.
func (e *ChunkedWhisperEngine) Stop() error {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if cancel == nil {
		return ErrNotStreaming
	}
	cancel()
	<-done
	return nil
}

// loop is the chunking worker. It owns the open chunk buffer; the final
// flush happens here so Stop can simply wait for done.
func (e *ChunkedWhisperEngine) loop(ctx context.Context, done chan struct{}, onPartial, onFinal func(text string)) {
	defer close(done)

	rate := e.tap.SampleRate()
	commitSamples := int(e.chunkLen.Seconds() * float64(rate))
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var open []float32
	for {
		select {
		case <-ctx.Done():
			open = append(open, e.tap.Stop()...)
			if len(open) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				text, err := e.transcribe(flushCtx, open, rate)
				cancel()
				if err != nil {
					e.logf("live: flush transcription failed: %v", err)
				} else if text != "" {
					onFinal(text)
				}
			}
			// The engine owns its tap for exactly one session; freeing it
			// here returns the capture device between sessions.
			if err := e.tap.Close(); err != nil {
				e.logf("live: closing audio tap: %v", err)
			}
			return
		case <-ticker.C:
			open = append(open, e.tap.Drain()...)
			if len(open) == 0 {
				continue
			}

			text, err := e.transcribe(ctx, open, rate)
			if err != nil {
				if ctx.Err() == nil {
					e.logf("live: chunk transcription failed: %v", err)
				}
				continue
			}
			if text == "" {
				continue
			}

			if len(open) >= commitSamples {
				onFinal(text)
				open = open[:0]
			} else {
				onPartial(text)
			}
		}
	}
}
