// Package piper synthesizes speech with a local piper binary, one process
// per utterance.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// SampleRate of piper's raw output for the usual medium voices.
const SampleRate = 22050

// Config configures the piper synthesizer.
type Config struct {
	Binary string `yaml:"binary"` // Default: piper from PATH
	Model  string `yaml:"model"`  // path to the .onnx voice
	// SampleRate overrides the voice's output rate.
	SampleRate int          `yaml:"sample_rate"`
	Logger     *slog.Logger `yaml:"-"`
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New checks the binary can be found and returns a synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("piper: model is required")
	}
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("piper binary not found: %w", err)
	}
	cfg.Binary = path
	return &Synthesizer{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "piper"))}, nil
}

// Format returns the voice's output format.
func (s *Synthesizer) Format() audio.Format {
	return audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1}
}

// Synthesize runs piper with text on stdin and streams raw PCM from stdout.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, ai.NewFatalError(errors.New("empty text"), "piper")
	}

	cmd := exec.CommandContext(ctx, s.cfg.Binary, "--model", s.cfg.Model, "--output_raw")
	cmd.Stdin = strings.NewReader(text + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ai.NewFatalError(err, "piper stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, ai.NewRecoverableError(err, "start piper")
	}

	chunks := make(chan []byte, 16)
	go func() {
		defer close(chunks)

		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					s.logger.Error("Read piper output", slog.String("error", err.Error()))
				}
				break
			}
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			s.logger.Error("piper failed", slog.String("error", err.Error()), slog.String("stderr", strings.TrimSpace(stderr.String())))
		}
	}()
	return chunks, nil
}
