// Package fake provides a scripted llm.Client for tests.
package fake

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
)

// ErrUnavailable is what FakeLLM returns for scripted open failures.
var ErrUnavailable = errors.New("fake llm unavailable")

// FakeLLM streams canned replies word by word.
type FakeLLM struct {
	// FailOpens makes the first N StreamChat calls fail.
	FailOpens int
	// OpenDelay is slept before each StreamChat returns.
	OpenDelay time.Duration
	// ChunkDelay is slept before each delta.
	ChunkDelay time.Duration
	// StallAfter, if positive, makes each stream block after that many
	// deltas until its context ends.
	StallAfter int

	mu        sync.Mutex
	responses []string
	calls     int
	requests  [][]llm.Message
}

// NewFakeLLM creates a fake that cycles through responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"This is a fake reply."}
	}
	return &FakeLLM{responses: responses}
}

// StreamChat returns the next canned reply as a stream.
func (f *FakeLLM) StreamChat(ctx context.Context, messages []llm.Message) (llm.Stream, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.requests = append(f.requests, append([]llm.Message(nil), messages...))
	fail := call < f.FailOpens
	var response string
	if !fail {
		response = f.responses[(call-f.FailOpens)%len(f.responses)]
	}
	f.mu.Unlock()

	if f.OpenDelay > 0 {
		select {
		case <-time.After(f.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, ErrUnavailable
	}
	return &stream{ctx: ctx, chunks: splitKeepSpace(response), delay: f.ChunkDelay, stallAfter: f.StallAfter}, nil
}

// Calls returns how many times StreamChat was called.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns the message lists passed to StreamChat.
func (f *FakeLLM) Requests() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llm.Message(nil), f.requests...)
}

type stream struct {
	ctx        context.Context
	chunks     []string
	delay      time.Duration
	stallAfter int
	sent       int
	closed     atomic.Bool
}

func (s *stream) Recv() (string, error) {
	if s.closed.Load() {
		return "", io.ErrClosedPipe
	}
	if s.stallAfter > 0 && s.sent >= s.stallAfter {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	s.sent++
	return chunk, nil
}

func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

// splitKeepSpace splits after each space so the deltas concatenate back to s.
func splitKeepSpace(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
