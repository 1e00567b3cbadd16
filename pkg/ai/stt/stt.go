// Package stt defines the speech-to-text contracts used while the user is
// talking, and Chunked, which turns any one-shot transcriber into a
// background engine.
package stt

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Engine transcribes a spoken turn that arrives in pieces. Consume must not
// block the caller; TranscribeAndStop collects everything consumed since the
// last Restart.
type Engine interface {
	Restart()
	Consume(pcm []byte)
	TranscribeAndStop(ctx context.Context) (string, error)
	Stop()
}

// Transcriber converts one chunk of 16 kHz mono PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

const (
	// DefaultMinAudio is the shortest chunk worth sending.
	DefaultMinAudio = 100 * time.Millisecond
	// DefaultWait bounds TranscribeAndStop.
	DefaultWait = 3 * time.Second
	// DefaultRequestTimeout bounds a single Transcribe call.
	DefaultRequestTimeout = 5 * time.Second
)

// ChunkedConfig configures a Chunked engine.
type ChunkedConfig struct {
	MinAudio       time.Duration
	Wait           time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// Observe, if set, receives the latency of every finished request.
	Observe func(time.Duration)
}

// Chunked transcribes each consumed chunk concurrently and stitches the
// results together in consumption order. Results for chunks consumed before
// the latest Restart are discarded.
type Chunked struct {
	t      Transcriber
	cfg    ChunkedConfig
	logger *slog.Logger

	mu      sync.Mutex
	index   int
	cut     int
	results map[int]result
	changed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

type result struct {
	text string
	err  error
}

var _ Engine = (*Chunked)(nil)

// NewChunked creates an engine on top of t.
func NewChunked(t Transcriber, cfg ChunkedConfig) *Chunked {
	if cfg.MinAudio <= 0 {
		cfg.MinAudio = DefaultMinAudio
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chunked{t: t, cfg: cfg, logger: logger.With(slog.String("component", "stt"))}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.results = make(map[int]result)
	c.changed = make(chan struct{})
	return c
}

// Restart abandons in-flight work and starts a new turn.
func (c *Chunked) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.cut = c.index
	c.results = make(map[int]result)
}

// Consume starts transcribing pcm in the background. Chunks shorter than
// MinAudio are ignored.
func (c *Chunked) Consume(pcm []byte) {
	minBytes := int(c.cfg.MinAudio.Seconds() * float64(audio.Mono16k.BytesPerSecond()))
	if len(pcm) < minBytes {
		c.logger.Debug("Skipping short chunk", slog.Int("bytes", len(pcm)))
		return
	}

	c.mu.Lock()
	index := c.index
	c.index++
	ctx := c.ctx
	c.mu.Unlock()

	chunk := append([]byte(nil), pcm...)
	go c.transcribe(ctx, chunk, index)
}

func (c *Chunked) transcribe(ctx context.Context, pcm []byte, index int) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.t.Transcribe(ctx, pcm)
	if c.cfg.Observe != nil {
		c.cfg.Observe(time.Since(start))
	}
	if err != nil {
		c.logger.Warn("Chunk transcription failed", slog.Int("index", index), slog.String("error", err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if index < c.cut {
		return
	}
	c.results[index] = result{text: text, err: err}
	close(c.changed)
	c.changed = make(chan struct{})
}

// TranscribeAndStop waits up to the configured bound for the outstanding
// chunks and joins their text. It fails only when the single result is an
// error; with several results, failed chunks are skipped.
func (c *Chunked) TranscribeAndStop(ctx context.Context) (string, error) {
	timer := time.NewTimer(c.cfg.Wait)
	defer timer.Stop()

	c.mu.Lock()
	expected := c.index - c.cut
	timedOut := false
	for len(c.results) < expected && !timedOut {
		changed := c.changed
		c.mu.Unlock()
		select {
		case <-changed:
		case <-timer.C:
			timedOut = true
			c.logger.Warn("Timed out waiting for transcription", slog.Int("expected", expected))
		case <-ctx.Done():
			c.Stop()
			return "", ctx.Err()
		}
		c.mu.Lock()
	}

	indexes := make([]int, 0, len(c.results))
	for i := range c.results {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	results := make([]result, 0, len(indexes))
	for _, i := range indexes {
		results = append(results, c.results[i])
	}

	// Late arrivals belong to nobody now.
	c.cut = c.index
	c.results = make(map[int]result)
	c.mu.Unlock()

	if len(results) == 1 && results[0].err != nil {
		return "", results[0].err
	}

	var parts []string
	for _, r := range results {
		if r.err == nil && strings.TrimSpace(r.text) != "" {
			parts = append(parts, strings.TrimSpace(r.text))
		}
	}
	text := strings.Join(parts, " ")
	c.logger.Info("Transcription", slog.String("text", text))
	return text, nil
}

// Stop cancels in-flight requests.
func (c *Chunked) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.cut = c.index
}
