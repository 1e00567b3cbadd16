// Package effects plays the short sound effects that mark wake-up, standby
// and failures.
package effects

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Well-known effect names.
const (
	Wake    = "beep2"
	Standby = "byebye"
	Error   = "error"
)

// outputRate is what the speaker is initialised with; effects are resampled
// to it on load.
const outputRate = beep.SampleRate(44100)

// Bank holds decoded effects in memory, keyed by file name without extension.
type Bank struct {
	logger *slog.Logger
	// Silent loads effects but never touches the audio device.
	silent bool

	mu      sync.Mutex
	sounds  map[string]*beep.Buffer
	initErr error
	once    sync.Once
}

// Config configures a Bank.
type Config struct {
	// Dir holds <name>.mp3 or <name>.wav files.
	Dir string
	// Silent disables the audio device, e.g. in tests or headless replay.
	Silent bool
	Logger *slog.Logger
}

// Load decodes every mp3 and wav file in cfg.Dir. A missing directory yields
// an empty bank; playing an unknown effect is logged and skipped.
func Load(cfg Config) (*Bank, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bank{
		logger: logger.With(slog.String("component", "effects")),
		silent: cfg.Silent,
		sounds: make(map[string]*beep.Buffer),
	}
	if cfg.Dir == "" {
		return b, nil
	}

	entries, err := os.ReadDir(cfg.Dir)
	if os.IsNotExist(err) {
		b.logger.Warn("Effects directory not found", slog.String("dir", cfg.Dir))
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read effects dir: %w", err)
	}

	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".mp3" && ext != ".wav") {
			continue
		}
		buf, err := decodeFile(filepath.Join(cfg.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		b.sounds[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = buf
	}
	b.logger.Debug("Effects loaded", slog.Int("count", len(b.sounds)))
	return b, nil
}

func decodeFile(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open effect: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		streamer, format, err = mp3.Decode(f)
	} else {
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer streamer.Close()

	out := beep.Format{SampleRate: outputRate, NumChannels: 2, Precision: 2}
	buf := beep.NewBuffer(out)
	var s beep.Streamer = streamer
	if format.SampleRate != outputRate {
		s = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}
	buf.Append(s)
	return buf, nil
}

// Names returns the loaded effect names.
func (b *Bank) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.sounds))
	for n := range b.sounds {
		names = append(names, n)
	}
	return names
}

// Duration returns the length of a loaded effect.
func (b *Bank) Duration(name string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.sounds[name]
	if !ok {
		return 0, false
	}
	return outputRate.D(buf.Len()), true
}

// Play starts an effect and returns immediately. The handle can stop it.
func (b *Bank) Play(name string) playback.Handle {
	b.mu.Lock()
	buf, ok := b.sounds[name]
	b.mu.Unlock()
	if !ok {
		b.logger.Warn("Unknown effect", slog.String("name", name))
		return playback.Finished()
	}
	if b.silent {
		return playback.Finished()
	}

	b.once.Do(func() {
		b.initErr = speaker.Init(outputRate, outputRate.N(time.Second/10))
	})
	if b.initErr != nil {
		b.logger.Error("Speaker unavailable", slog.String("error", b.initErr.Error()))
		return playback.Finished()
	}

	h := &handle{done: make(chan struct{})}
	h.ctrl = &beep.Ctrl{Streamer: buf.Streamer(0, buf.Len())}
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(h.finish)))
	b.logger.Debug("Playing effect", slog.String("name", name))
	return h
}

type handle struct {
	ctrl *beep.Ctrl
	done chan struct{}
	once sync.Once
}

func (h *handle) finish() {
	h.once.Do(func() { close(h.done) })
}

// Kill detaches the effect's streamer; the mixer drops it on the next pass.
func (h *handle) Kill() error {
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()
	h.finish()
	return nil
}

func (h *handle) Done() <-chan struct{} { return h.done }
