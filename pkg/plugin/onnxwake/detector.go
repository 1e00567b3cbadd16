// Package onnxwake spots wake phrases with a keyword model run through ONNX
// Runtime. The model scores a sliding window of recent audio.
package onnxwake

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Scorer returns one score in [0, 1] per keyword for a window of samples
// normalized to [-1, 1].
type Scorer interface {
	Score(window []float32) ([]float32, error)
	Close() error
}

// Config configures the detector. Frame counts are capture frames.
type Config struct {
	ModelPath  string   `yaml:"model_path"`
	Keywords   []string `yaml:"keywords"`
	InputName  string   `yaml:"input_name"`  // Default: input
	OutputName string   `yaml:"output_name"` // Default: output
	Threshold  float32  `yaml:"threshold"`   // Default: 0.5
	// WindowFrames of audio are scored at once.
	WindowFrames int `yaml:"window_frames"` // Default: 40
	// HopFrames between scorings.
	HopFrames int `yaml:"hop_frames"` // Default: 4
	// CooldownFrames after a detection during which nothing fires.
	CooldownFrames int          `yaml:"cooldown_frames"` // Default: 32
	Threads        int          `yaml:"threads"`
	Logger         *slog.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if len(c.Keywords) == 0 {
		c.Keywords = []string{"wake"}
	}
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.WindowFrames <= 0 {
		c.WindowFrames = 40
	}
	if c.HopFrames <= 0 {
		c.HopFrames = 4
	}
	if c.CooldownFrames <= 0 {
		c.CooldownFrames = 32
	}
	if c.Threads <= 0 {
		c.Threads = max(1, runtime.NumCPU()/2)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Detector implements wake.Engine.
type Detector struct {
	cfg    Config
	scorer Scorer
	logger *slog.Logger

	window   []float32
	filled   int
	sinceRun int
	cooldown int
}

var _ wake.Engine = (*Detector)(nil)

// New loads the model at cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	scorer, err := newOrtScorer(cfg, cfg.WindowFrames*audio.FrameLength, len(cfg.Keywords))
	if err != nil {
		return nil, err
	}
	return NewWithScorer(cfg, scorer), nil
}

// NewWithScorer builds a detector around any scorer.
func NewWithScorer(cfg Config, scorer Scorer) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		scorer: scorer,
		logger: cfg.Logger.With(slog.String("component", "onnxwake")),
		window: make([]float32, cfg.WindowFrames*audio.FrameLength),
	}
}

// Process slides frame into the window and scores it every HopFrames once
// the window is full.
func (d *Detector) Process(frame audio.Frame) (int, bool, error) {
	n := len(frame)
	copy(d.window, d.window[n:])
	tail := d.window[len(d.window)-n:]
	for i, s := range frame {
		tail[i] = float32(s) / 32768
	}
	d.filled = min(d.filled+1, d.cfg.WindowFrames)

	if d.cooldown > 0 {
		d.cooldown--
		return -1, false, nil
	}
	d.sinceRun++
	if d.filled < d.cfg.WindowFrames || d.sinceRun < d.cfg.HopFrames {
		return -1, false, nil
	}
	d.sinceRun = 0

	scores, err := d.scorer.Score(d.window)
	if err != nil {
		return -1, false, fmt.Errorf("score wake window: %w", err)
	}

	best, bestScore := -1, d.cfg.Threshold
	for i, s := range scores {
		if i < len(d.cfg.Keywords) && s >= bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return -1, false, nil
	}

	d.logger.Info("Wake phrase detected", slog.String("keyword", d.cfg.Keywords[best]), slog.Float64("score", float64(bestScore)))
	d.cooldown = d.cfg.CooldownFrames
	d.filled = 0
	clear(d.window)
	return best, true, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	return d.scorer.Close()
}
