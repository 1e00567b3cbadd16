package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrNotStarted is returned by Read before Start or after Stop.
var ErrNotStarted = errors.New("frame source not started")

// FrameSource delivers fixed-size capture frames. Read blocks until the next
// frame is available, the context ends, or the source is exhausted (io.EOF).
type FrameSource interface {
	Start() error
	Read(ctx context.Context) (Frame, error)
	Stop() error
	Close() error
}

// SliceSource replays pre-recorded 16 kHz mono samples as frames. The last
// partial frame is zero-padded. With Realtime set, frames are paced at
// FrameDuration the way a microphone would deliver them.
type SliceSource struct {
	Realtime bool

	mu      sync.Mutex
	samples []int16
	pos     int
	started bool
	next    time.Time
}

// NewSliceSource creates a source over samples.
func NewSliceSource(samples []int16, realtime bool) *SliceSource {
	return &SliceSource{samples: samples, Realtime: realtime}
}

// FramesFrom splits samples into frames, zero-padding the final one.
func FramesFrom(samples []int16) []Frame {
	var frames []Frame
	for start := 0; start < len(samples); start += FrameLength {
		f := make(Frame, FrameLength)
		copy(f, samples[start:min(start+FrameLength, len(samples))])
		frames = append(frames, f)
	}
	return frames
}

func (s *SliceSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.next = time.Now()
	return nil
}

func (s *SliceSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if s.pos >= len(s.samples) {
		s.mu.Unlock()
		return nil, io.EOF
	}

	f := make(Frame, FrameLength)
	end := min(s.pos+FrameLength, len(s.samples))
	copy(f, s.samples[s.pos:end])
	s.pos = end
	wait := time.Until(s.next)
	s.next = s.next.Add(FrameDuration)
	s.mu.Unlock()

	if s.Realtime && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SliceSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *SliceSource) Close() error {
	return s.Stop()
}
