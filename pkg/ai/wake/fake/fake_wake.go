// Package fake provides a scripted wake.Engine for tests.
package fake

import (
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// FakeWake detects the wake phrase at scripted frame numbers.
type FakeWake struct {
	mu      sync.Mutex
	at      map[int]bool
	frame   int
	trigger bool
}

var _ wake.Engine = (*FakeWake)(nil)

// NewFakeWake fires on the given zero-based frame numbers.
func NewFakeWake(frames ...int) *FakeWake {
	at := make(map[int]bool, len(frames))
	for _, f := range frames {
		at[f] = true
	}
	return &FakeWake{at: at}
}

// Trigger makes the next Process call detect.
func (f *FakeWake) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trigger = true
}

// Frames returns how many frames were processed.
func (f *FakeWake) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *FakeWake) Process(frame audio.Frame) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.frame
	f.frame++
	if f.trigger || f.at[n] {
		f.trigger = false
		return 0, true, nil
	}
	return -1, false, nil
}

func (f *FakeWake) Close() error { return nil }
