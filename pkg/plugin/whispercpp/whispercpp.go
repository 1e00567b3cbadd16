// Package whispercpp transcribes speech with a local whisper.cpp binary.
package whispercpp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/audio/wav"
)

// Config configures the whisper.cpp transcriber.
type Config struct {
	Binary   string       `yaml:"binary"` // Default: whisper-cli
	Model    string       `yaml:"model"`  // ggml model path
	Threads  int          `yaml:"threads"`
	Language string       `yaml:"language"`
	Logger   *slog.Logger `yaml:"-"`
}

// Transcriber implements stt.Transcriber by running whisper.cpp once per
// chunk on a temporary WAV file.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New finds the binary and returns a transcriber.
func New(cfg Config) (*Transcriber, error) {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("whispercpp: model is required")
	}
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp binary not found: %w", err)
	}
	cfg.Binary = path
	return &Transcriber{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "whispercpp"))}, nil
}

// Transcribe writes pcm to a temporary WAV file and runs whisper.cpp on it.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	f, err := os.CreateTemp("", "va-*.wav")
	if err != nil {
		return "", ai.NewFatalError(err, "create temp wav")
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(wav.Encode(pcm, audio.Mono16k)); err != nil {
		f.Close()
		return "", ai.NewFatalError(err, "write temp wav")
	}
	if err := f.Close(); err != nil {
		return "", ai.NewFatalError(err, "close temp wav")
	}

	args := []string{"-m", t.cfg.Model, "-nt", "-t", strconv.Itoa(t.cfg.Threads)}
	if t.cfg.Language != "" {
		args = append(args, "-l", t.cfg.Language)
	}
	args = append(args, "-f", f.Name())

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ai.NewRecoverableError(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())), "whisper.cpp")
	}

	text := parseOutput(stdout.String())
	t.logger.Debug("Transcription", slog.String("text", text))
	return text, nil
}

// Timestamps, [BLANK_AUDIO] and similar markers.
var markers = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// parseOutput keeps the spoken text from whisper.cpp's stdout, dropping
// terminal control sequences and non-speech markers.
func parseOutput(out string) string {
	var words []string
	for _, line := range strings.Split(out, "\n") {
		if i := strings.LastIndex(line, "\x1b[2K\r"); i >= 0 {
			line = line[i+len("\x1b[2K\r"):]
		}
		line = markers.ReplaceAllString(line, " ")
		words = append(words, strings.Fields(line)...)
	}
	return strings.Join(words, " ")
}
