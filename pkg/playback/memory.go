package playback

import (
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// MemorySink records everything written to it. It plays nothing and is used
// to assert on reply audio.
type MemorySink struct {
	Format audio.Format

	mu     sync.Mutex
	data   []byte
	writes int
	closed bool
	killed bool
	done   chan struct{}
	once   sync.Once
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an open sink.
func NewMemorySink(format audio.Format) *MemorySink {
	return &MemorySink{Format: format, done: make(chan struct{})}
}

// MemoryOpener returns an Opener that records every sink it opens.
func MemoryOpener() (Opener, func() []*MemorySink) {
	var mu sync.Mutex
	var sinks []*MemorySink
	open := func(format audio.Format) (Sink, error) {
		s := NewMemorySink(format)
		mu.Lock()
		sinks = append(sinks, s)
		mu.Unlock()
		return s, nil
	}
	opened := func() []*MemorySink {
		mu.Lock()
		defer mu.Unlock()
		return append([]*MemorySink(nil), sinks...)
	}
	return open, opened
}

func (m *MemorySink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killed {
		return 0, ErrKilled
	}
	m.data = append(m.data, p...)
	m.writes++
	return len(p), nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemorySink) Handle() Handle {
	return &doneHandle{done: m.done, kill: m.kill}
}

func (m *MemorySink) kill() error {
	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return nil
}

// Bytes returns a copy of the audio written so far.
func (m *MemorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Writes returns how many Write calls succeeded.
func (m *MemorySink) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Closed reports whether Close was called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Killed reports whether the handle was killed.
func (m *MemorySink) Killed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}
