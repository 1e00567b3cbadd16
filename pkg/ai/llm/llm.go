// Package llm defines the streaming chat contract the reply pipeline talks to.
package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
)

// MessageRole represents the role of a message in a chat conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// Stream yields reply text deltas. Recv returns io.EOF after the last delta.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client opens streaming chat completions.
type Client interface {
	StreamChat(ctx context.Context, messages []Message) (Stream, error)
}

// DefaultConnectTimeout bounds how long opening a stream may take.
const DefaultConnectTimeout = 3 * time.Second

// DefaultIdleTimeout bounds the wait for each delta once a stream is open.
const DefaultIdleTimeout = 10 * time.Second

// RetryOptions configures WithRetry.
type RetryOptions struct {
	ConnectTimeout time.Duration
	// IdleTimeout ends a stream that produces no delta for this long. The
	// stalled Recv returns a recoverable error.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	// OnRetry is called before the second attempt.
	OnRetry func()
}

// WithRetry wraps a client so that opening a stream is bounded by a connect
// timeout and retried once, and every Recv on the open stream is bounded by
// an idle timeout. Failures after the stream is open are not retried.
func WithRetry(c Client, opts RetryOptions) Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &retryClient{next: c, opts: opts}
}

type retryClient struct {
	next Client
	opts RetryOptions
}

func (r *retryClient) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	attempt := 0
	return ai.RetryOnce(ctx, r.opts.Logger, "llm stream", func(ctx context.Context) (Stream, error) {
		attempt++
		if attempt > 1 && r.opts.OnRetry != nil {
			r.opts.OnRetry()
		}
		return r.open(ctx, messages)
	})
}

func (r *retryClient) open(ctx context.Context, messages []Message) (Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(r.opts.ConnectTimeout, cancel)

	stream, err := r.next.StreamChat(sctx, messages)
	if !timer.Stop() {
		// The timeout fired while connecting.
		if err == nil {
			stream.Close()
		}
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ai.NewRecoverableError(context.DeadlineExceeded, "llm stream open timed out")
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelStream{Stream: stream, cancel: cancel, idle: r.opts.IdleTimeout}, nil
}

// cancelStream releases the per-attempt context when the stream is closed
// and gives up on a Recv that stalls for longer than idle.
type cancelStream struct {
	Stream
	cancel context.CancelFunc
	idle   time.Duration
	err    error
}

type recvResult struct {
	delta string
	err   error
}

func (s *cancelStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}

	res := make(chan recvResult, 1)
	go func() {
		delta, err := s.Stream.Recv()
		res <- recvResult{delta, err}
	}()

	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	select {
	case r := <-res:
		return r.delta, r.err
	case <-timer.C:
		s.cancel()
		s.err = ai.NewRecoverableError(context.DeadlineExceeded, "llm stream stalled")
		return "", s.err
	}
}

func (s *cancelStream) Close() error {
	err := s.Stream.Close()
	s.cancel()
	return err
}
