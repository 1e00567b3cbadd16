package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	openai "github.com/sashabaranov/go-openai"
)

// speechFormat is what the speech endpoint returns for the pcm format.
var speechFormat = audio.Format{SampleRate: 24000, Channels: 1}

// Speech implements tts.Synthesizer using OpenAI's text-to-speech API.
type Speech struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ tts.Synthesizer = (*Speech)(nil)

// NewSpeech creates a new speech synthesizer.
func NewSpeech(cfg Config) (*Speech, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Speech{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "openai-tts")),
	}, nil
}

// Format returns 24 kHz mono.
func (o *Speech) Format() audio.Format {
	return speechFormat
}

// Synthesize requests raw PCM for text and streams it as it arrives.
func (o *Speech) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(o.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          o.cfg.Speed,
	}

	start := time.Now()
	resp, err := o.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, classify(ctx, err, "speech")
	}

	chunks := make(chan []byte, 16)
	go func() {
		defer close(chunks)
		defer resp.Close()

		buffer := make([]byte, 4096)
		for {
			n, err := resp.Read(buffer)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buffer[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					o.logger.Error("Error reading speech response", slog.String("error", err.Error()))
				}
				break
			}
		}
		o.logger.Debug("Speech synthesized", slog.String("text", text), slog.Duration("duration", time.Since(start)))
	}()

	return chunks, nil
}
