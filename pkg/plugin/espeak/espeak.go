// Package espeak synthesizes speech with espeak-ng. Output is lower quality
// than the neural voices but needs no model files or network.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/audio/wav"
)

// SampleRate espeak-ng writes at.
const SampleRate = 22050

// Config configures the espeak synthesizer.
type Config struct {
	Binary string       `yaml:"binary"` // Default: espeak-ng
	Voice  string       `yaml:"voice"`  // e.g. en-us
	Speed  int          `yaml:"speed"`  // words per minute; 0 keeps espeak's default
	Logger *slog.Logger `yaml:"-"`
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New finds the binary and returns a synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Binary == "" {
		cfg.Binary = "espeak-ng"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("espeak binary not found: %w", err)
	}
	cfg.Binary = path
	return &Synthesizer{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "espeak"))}, nil
}

// Format returns 22.05 kHz mono.
func (s *Synthesizer) Format() audio.Format {
	return audio.Format{SampleRate: SampleRate, Channels: 1}
}

func (s *Synthesizer) args(text string) []string {
	args := []string{"--stdout"}
	if s.cfg.Voice != "" {
		args = append(args, "-v", s.cfg.Voice)
	}
	if s.cfg.Speed > 0 {
		args = append(args, "-s", strconv.Itoa(s.cfg.Speed))
	}
	return append(args, "--", text)
}

// Synthesize runs espeak to completion; its WAV output is decoded and sent
// as one chunk.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ai.NewFatalError(errors.New("empty text"), "espeak")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.args(text)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ai.NewRecoverableError(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())), "espeak")
	}

	clip, err := wav.Decode(&stdout)
	if err != nil {
		return nil, ai.NewFatalError(err, "decode espeak output")
	}

	chunks := make(chan []byte, 1)
	chunks <- audio.EncodePCM(clip.Mono(SampleRate))
	close(chunks)
	return chunks, nil
}
