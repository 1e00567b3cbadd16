// Package playback plays synthesized reply audio and hands out handles that
// let the interruption detector cut it short.
package playback

import (
	"errors"
	"io"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// ErrKilled is returned by Write after the sink's handle was killed.
var ErrKilled = errors.New("playback killed")

// Handle controls audio that is playing.
type Handle interface {
	// Kill stops playback immediately.
	Kill() error
	// Done is closed when playback has ended, naturally or by Kill.
	Done() <-chan struct{}
}

// Sink accepts PCM for immediate playback. Close waits for queued audio to
// finish playing.
type Sink interface {
	io.Writer
	Close() error
	Handle() Handle
}

// Opener creates a sink for audio in the given format.
type Opener func(format audio.Format) (Sink, error)

// doneHandle is a Handle backed by a channel and a kill function.
type doneHandle struct {
	done chan struct{}
	kill func() error
}

func (h *doneHandle) Kill() error            { return h.kill() }
func (h *doneHandle) Done() <-chan struct{} { return h.done }

// Finished returns a handle whose playback has already ended.
func Finished() Handle {
	done := make(chan struct{})
	close(done)
	return &doneHandle{done: done, kill: func() error { return nil }}
}
