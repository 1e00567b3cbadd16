// Package fake provides scripted speech-to-text collaborators for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
)

// FakeTranscriber returns canned responses in call order.
type FakeTranscriber struct {
	// Delays, indexed by call, are slept before responding.
	Delays []time.Duration
	// Errors, keyed by call, are returned instead of text.
	Errors map[int]error

	mu        sync.Mutex
	responses []string
	calls     int
	sizes     []int
}

// NewFakeTranscriber creates a transcriber cycling through responses.
func NewFakeTranscriber(responses ...string) *FakeTranscriber {
	if len(responses) == 0 {
		responses = []string{"hello there"}
	}
	return &FakeTranscriber{responses: responses}
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.sizes = append(f.sizes, len(pcm))
	var delay time.Duration
	if call < len(f.Delays) {
		delay = f.Delays[call]
	}
	err := f.Errors[call]
	text := f.responses[call%len(f.responses)]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns how many chunks were transcribed.
func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Sizes returns the byte length of every chunk received.
func (f *FakeTranscriber) Sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sizes...)
}

// FakeEngine is a synchronous stt.Engine whose result is set directly.
type FakeEngine struct {
	mu       sync.Mutex
	text     string
	err      error
	consumed int
	restarts int
	stops    int
}

var _ stt.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine that always transcribes to text.
func NewFakeEngine(text string) *FakeEngine {
	return &FakeEngine{text: text}
}

// SetResult changes what the next TranscribeAndStop returns.
func (f *FakeEngine) SetResult(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.err = text, err
}

func (f *FakeEngine) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	f.consumed = 0
}

func (f *FakeEngine) Consume(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed += len(pcm)
}

func (f *FakeEngine) TranscribeAndStop(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

func (f *FakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

// Consumed returns the bytes consumed since the last Restart.
func (f *FakeEngine) Consumed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumed
}

// Restarts returns how many times Restart was called.
func (f *FakeEngine) Restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}
