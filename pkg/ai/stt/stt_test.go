package stt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/ai/stt/fake"
	"github.com/matryer/is"
)

// oneSecond of 16 kHz mono PCM.
var oneSecond = make([]byte, 32000)

func TestChunked_JoinsInConsumeOrder(t *testing.T) {
	is := is.New(t)

	tr := fake.NewFakeTranscriber("first part", "second part")
	// the first chunk finishes last
	tr.Delays = []time.Duration{40 * time.Millisecond, 0}
	c := stt.NewChunked(tr, stt.ChunkedConfig{})

	c.Restart()
	c.Consume(oneSecond)
	c.Consume(oneSecond)
	text, err := c.TranscribeAndStop(context.Background())
	is.NoErr(err)
	is.Equal(text, "first part second part")
}

func TestChunked_IgnoresShortAudio(t *testing.T) {
	is := is.New(t)

	tr := fake.NewFakeTranscriber("x")
	c := stt.NewChunked(tr, stt.ChunkedConfig{})
	c.Restart()
	c.Consume(make([]byte, 1000)) // ~31 ms

	text, err := c.TranscribeAndStop(context.Background())
	is.NoErr(err)
	is.Equal(text, "")
	is.Equal(tr.Calls(), 0)
}

func TestChunked_SoleErrorFails(t *testing.T) {
	is := is.New(t)

	boom := errors.New("boom")
	tr := fake.NewFakeTranscriber("ok")
	tr.Errors = map[int]error{0: boom}
	c := stt.NewChunked(tr, stt.ChunkedConfig{})

	c.Restart()
	c.Consume(oneSecond)
	_, err := c.TranscribeAndStop(context.Background())
	is.True(errors.Is(err, boom))
}

func TestChunked_PartialErrorIsSkipped(t *testing.T) {
	is := is.New(t)

	tr := fake.NewFakeTranscriber("lost", "kept")
	tr.Errors = map[int]error{0: errors.New("boom")}
	c := stt.NewChunked(tr, stt.ChunkedConfig{})

	c.Restart()
	c.Consume(oneSecond)
	c.Consume(oneSecond)
	text, err := c.TranscribeAndStop(context.Background())
	is.NoErr(err)
	is.Equal(text, "kept")
}

func TestChunked_RestartDropsEarlierChunks(t *testing.T) {
	is := is.New(t)

	tr := fake.NewFakeTranscriber("stale", "fresh")
	tr.Delays = []time.Duration{30 * time.Millisecond, 0}
	c := stt.NewChunked(tr, stt.ChunkedConfig{})

	c.Restart()
	c.Consume(oneSecond)
	c.Restart()
	c.Consume(oneSecond)
	text, err := c.TranscribeAndStop(context.Background())
	is.NoErr(err)
	is.Equal(text, "fresh")
}

func TestChunked_BoundedWait(t *testing.T) {
	is := is.New(t)

	tr := fake.NewFakeTranscriber("slow")
	tr.Delays = []time.Duration{time.Second}
	c := stt.NewChunked(tr, stt.ChunkedConfig{Wait: 30 * time.Millisecond})

	c.Restart()
	c.Consume(oneSecond)
	start := time.Now()
	text, err := c.TranscribeAndStop(context.Background())
	is.NoErr(err)
	is.Equal(text, "")
	is.True(time.Since(start) < 500*time.Millisecond)
}
