package openai

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/audio/wav"
	openai "github.com/sashabaranov/go-openai"
)

// Whisper implements stt.Transcriber using OpenAI's Whisper API.
type Whisper struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ stt.Transcriber = (*Whisper)(nil)

// NewWhisper creates a new Whisper transcriber.
func NewWhisper(cfg Config) (*Whisper, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Whisper{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "openai-stt")),
	}, nil
}

// Transcribe sends 16 kHz mono PCM to Whisper as a WAV file.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	req := openai.AudioRequest{
		Model:    w.cfg.STTModel,
		Language: w.cfg.Language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav.Encode(pcm, audio.Mono16k)),
		FilePath: "audio.wav",
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", classify(ctx, err, "transcription")
	}

	w.logger.Debug("Whisper transcription result", slog.String("text", resp.Text))
	return strings.TrimSpace(resp.Text), nil
}
