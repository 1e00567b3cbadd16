// Package wswake delegates wake-phrase detection to a remote service over a
// websocket. Capture frames are streamed as binary PCM and the service
// answers with wake_word events.
package wswake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/internal/wsclient"
	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Config configures the remote detector.
type Config struct {
	URL       string       `yaml:"url"`
	Token     string       `yaml:"token"`
	WakeWords []string     `yaml:"wake_words"`
	Threshold float64      `yaml:"threshold"`
	Logger    *slog.Logger `yaml:"-"`
}

// Event is a detection reported by the service.
type Event struct {
	Type       string  `json:"type"`
	WakeWord   string  `json:"wake_word"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
	Message    string  `json:"message,omitempty"`
}

type configMessage struct {
	Type      string   `json:"type"`
	Enabled   bool     `json:"enabled"`
	WakeWords []string `json:"wake_words"`
	Threshold float64  `json:"threshold"`
	Timestamp float64  `json:"timestamp"`
}

// Engine implements wake.Engine. Process never blocks on the network:
// frames are queued for a sender goroutine and detections are picked up
// from a channel.
type Engine struct {
	cfg    Config
	client *wsclient.Client
	logger *slog.Logger

	frames     chan []byte
	detections chan int
	errs       chan error
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

var _ wake.Engine = (*Engine)(nil)

// New connects to the service and sends the detector configuration.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.URL == "" {
		return nil, errors.New("wswake: url is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := wsclient.New(cfg.URL, cfg.Token, cfg.Logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("wswake: %w", err)
	}
	err := client.WriteJSON(configMessage{
		Type:      "wake_word_config",
		Enabled:   true,
		WakeWords: cfg.WakeWords,
		Threshold: cfg.Threshold,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("wswake: send config: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		client:     client,
		logger:     cfg.Logger.With(slog.String("component", "wswake")),
		frames:     make(chan []byte, 64),
		detections: make(chan int, 1),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	e.wg.Add(2)
	go e.send()
	go e.receive()
	return e, nil
}

func (e *Engine) send() {
	defer e.wg.Done()
	for {
		select {
		case pcm := <-e.frames:
			if err := e.client.WriteBinary(pcm); err != nil {
				e.fail(fmt.Errorf("send audio: %w", err))
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) receive() {
	defer e.wg.Done()
	for {
		var ev Event
		if err := e.client.ReadJSON(&ev); err != nil {
			e.fail(err)
			return
		}
		switch ev.Type {
		case "wake_word":
			e.logger.Info("Wake word detected", slog.String("wake_word", ev.WakeWord), slog.Float64("confidence", ev.Confidence))
			select {
			case e.detections <- e.keyword(ev.WakeWord):
			default:
			}
		case "error":
			e.logger.Warn("Wake service error", slog.String("message", ev.Message))
		default:
			e.logger.Debug("Ignoring message", slog.String("type", ev.Type))
		}
	}
}

func (e *Engine) keyword(name string) int {
	for i, w := range e.cfg.WakeWords {
		if w == name {
			return i
		}
	}
	return 0
}

func (e *Engine) fail(err error) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.errs <- err:
	default:
	}
}

// Process queues frame for the service and reports a detection received
// since the previous call.
func (e *Engine) Process(frame audio.Frame) (int, bool, error) {
	select {
	case err := <-e.errs:
		return -1, false, fmt.Errorf("wswake: %w", err)
	default:
	}

	select {
	case e.frames <- frame.Bytes():
	default:
		e.logger.Debug("Sender busy, dropping frame")
	}

	select {
	case kw := <-e.detections:
		return kw, true, nil
	default:
		return -1, false, nil
	}
}

// Close stops streaming and closes the connection.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.client.Close()
		e.wg.Wait()
	})
	return err
}
