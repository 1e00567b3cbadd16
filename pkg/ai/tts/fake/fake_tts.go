// Package fake provides a deterministic tts.Synthesizer for tests.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// FakeTTS produces a sine tone whose length depends on the text.
type FakeTTS struct {
	// SampleRate of the produced audio; 16 kHz when zero.
	SampleRate int
	// PerWord is the audio length per word.
	PerWord time.Duration
	// ChunkSize is the byte size of each emitted chunk.
	ChunkSize int
	// Delay returns how long to wait before the first chunk of text.
	Delay func(text string) time.Duration
	// Fail, if set, is returned by Synthesize for matching text.
	Fail func(text string) error

	mu    sync.Mutex
	texts []string
}

// NewFakeTTS creates a fake producing 100 ms of tone per word.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{PerWord: 100 * time.Millisecond, ChunkSize: 1024}
}

func (f *FakeTTS) Format() audio.Format {
	if f.SampleRate == 0 {
		return audio.Mono16k
	}
	return audio.Format{SampleRate: f.SampleRate, Channels: 1}
}

// Texts returns every utterance requested, in call order.
func (f *FakeTTS) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// Synthesize generates a 440 Hz tone for the given text.
func (f *FakeTTS) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.Fail != nil {
		if err := f.Fail(text); err != nil {
			return nil, err
		}
	}

	format := f.Format()
	words := 0
	inWord := false
	for _, r := range text {
		if r == ' ' {
			inWord = false
		} else if !inWord {
			inWord = true
			words++
		}
	}
	samples := int(f.PerWord.Seconds()*float64(format.SampleRate)) * max(words, 1)
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate)))
	}
	data := audio.EncodePCM(pcm)

	output := make(chan []byte, 4)
	go func() {
		defer close(output)

		if f.Delay != nil {
			select {
			case <-time.After(f.Delay(text)):
			case <-ctx.Done():
				return
			}
		}

		size := f.ChunkSize
		if size <= 0 {
			size = len(data)
		}
		for len(data) > 0 {
			n := min(size, len(data))
			select {
			case output <- data[:n]:
			case <-ctx.Done():
				return
			}
			data = data[n:]
		}
	}()
	return output, nil
}
