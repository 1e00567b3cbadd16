// Package tts defines text-to-speech contracts. A Synthesizer turns one
// utterance into PCM; an Engine accepts a whole reply in pieces and is
// responsible for speaking them in order.
package tts

import (
	"context"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Synthesizer converts text to 16-bit little-endian PCM in Format. The
// returned channel is closed when synthesis finishes or ctx ends. A failure
// part way through is reported by closing early; the error is logged by the
// synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
	Format() audio.Format
}

// Engine speaks a reply that arrives one utterance at a time.
type Engine interface {
	// Consume queues an utterance; synthesis starts immediately.
	Consume(ctx context.Context, text string)
	// Finish marks the end of the reply.
	Finish()
	// WaitToFinish blocks until every queued utterance has been played. It
	// returns the synthesis error when the reply produced no audio at all.
	WaitToFinish(ctx context.Context) error
	// MinWords is the smallest utterance worth synthesizing on its own.
	MinWords() int
	// Stop abandons synthesis and playback.
	Stop()
}
