// Package engines turns configuration into the concrete engines and wires
// them into a conversation machine.
package engines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/config"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/chriscow/voice-agent-go/pkg/playback/effects"
	"github.com/chriscow/voice-agent-go/pkg/plugin"
	"github.com/chriscow/voice-agent-go/pkg/plugin/elevenlabs"
	"github.com/chriscow/voice-agent-go/pkg/plugin/espeak"
	"github.com/chriscow/voice-agent-go/pkg/plugin/onnxwake"
	"github.com/chriscow/voice-agent-go/pkg/plugin/openai"
	"github.com/chriscow/voice-agent-go/pkg/plugin/piper"
	"github.com/chriscow/voice-agent-go/pkg/plugin/whispercpp"
	"github.com/chriscow/voice-agent-go/pkg/plugin/wswake"
)

// Set holds the engines selected by configuration. Wake is nil when the
// agent is always listening.
type Set struct {
	LLM         llm.Client
	Transcriber stt.Transcriber
	Synth       tts.Synthesizer
	Wake        wake.Engine
}

// Close releases the wake engine.
func (s *Set) Close() error {
	if s.Wake == nil {
		return nil
	}
	return s.Wake.Close()
}

// New builds every engine named in cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Set, error) {
	llmClient, err := NewLLM(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	transcriber, err := NewTranscriber(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	synth, err := NewSynthesizer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	wakeEngine, err := NewWake(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("wake: %w", err)
	}
	return &Set{LLM: llmClient, Transcriber: transcriber, Synth: synth, Wake: wakeEngine}, nil
}

func openAIConfig(cfg *config.Config, logger *slog.Logger) openai.Config {
	c := cfg.OpenAI
	c.Logger = logger
	return c
}

// NewLLM builds the chat client.
func NewLLM(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	return openai.NewLLM(openAIConfig(cfg, logger))
}

// Settings is what every engine factory is built from.
type Settings struct {
	Config *config.Config
	Logger *slog.Logger
}

// Registries holds the engine factories by config name.
type Registries struct {
	Transcribers *plugin.Registry[Settings, stt.Transcriber]
	Synthesizers *plugin.Registry[Settings, tts.Synthesizer]
	Wakes        *plugin.Registry[Settings, wake.Engine]
}

// NewRegistries returns registries holding every built-in engine.
func NewRegistries() *Registries {
	r := &Registries{
		Transcribers: plugin.NewRegistry[Settings, stt.Transcriber]("stt"),
		Synthesizers: plugin.NewRegistry[Settings, tts.Synthesizer]("tts"),
		Wakes:        plugin.NewRegistry[Settings, wake.Engine]("wake"),
	}

	r.Transcribers.Register(config.EngineOpenAI, "OpenAI Whisper API", func(_ context.Context, s Settings) (stt.Transcriber, error) {
		return openai.NewWhisper(openAIConfig(s.Config, s.Logger))
	})
	r.Transcribers.Register(config.EngineWhisperCpp, "local whisper.cpp subprocess", func(_ context.Context, s Settings) (stt.Transcriber, error) {
		c := s.Config.STT.WhisperCpp
		c.Logger = s.Logger
		return whispercpp.New(c)
	})

	r.Synthesizers.Register(config.EngineOpenAI, "OpenAI speech API, 24 kHz PCM", func(_ context.Context, s Settings) (tts.Synthesizer, error) {
		return openai.NewSpeech(openAIConfig(s.Config, s.Logger))
	})
	r.Synthesizers.Register(config.EngineElevenLabs, "ElevenLabs streaming API, 16 kHz PCM", func(_ context.Context, s Settings) (tts.Synthesizer, error) {
		c := s.Config.TTS.ElevenLabs
		c.Logger = s.Logger
		return elevenlabs.New(c)
	})
	r.Synthesizers.Register(config.EnginePiper, "local piper subprocess", func(_ context.Context, s Settings) (tts.Synthesizer, error) {
		c := s.Config.TTS.Piper
		c.Logger = s.Logger
		return piper.New(c)
	})
	r.Synthesizers.Register(config.EngineEspeak, "local espeak-ng subprocess", func(_ context.Context, s Settings) (tts.Synthesizer, error) {
		c := s.Config.TTS.Espeak
		c.Logger = s.Logger
		return espeak.New(c)
	})

	r.Wakes.Register(config.EngineNone, "always listening", func(context.Context, Settings) (wake.Engine, error) {
		return nil, nil
	})
	r.Wakes.Register(config.EngineONNX, "local ONNX keyword model", func(_ context.Context, s Settings) (wake.Engine, error) {
		c := s.Config.Wake.ONNX
		c.Logger = s.Logger
		return onnxwake.New(c)
	})
	r.Wakes.Register(config.EngineWebSocket, "remote wake-word server", func(ctx context.Context, s Settings) (wake.Engine, error) {
		c := s.Config.Wake.WebSocket
		c.Logger = s.Logger
		return wswake.New(ctx, c)
	})
	return r
}

// NewTranscriber builds the configured speech-to-text transcriber.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) (stt.Transcriber, error) {
	return NewRegistries().Transcribers.New(context.Background(), cfg.STT.Engine, Settings{Config: cfg, Logger: logger})
}

// NewSynthesizer builds the configured text-to-speech synthesizer.
func NewSynthesizer(cfg *config.Config, logger *slog.Logger) (tts.Synthesizer, error) {
	return NewRegistries().Synthesizers.New(context.Background(), cfg.TTS.Engine, Settings{Config: cfg, Logger: logger})
}

// NewWake builds the configured wake engine, or nil for none.
func NewWake(ctx context.Context, cfg *config.Config, logger *slog.Logger) (wake.Engine, error) {
	name := cfg.Wake.Engine
	if name == "" {
		name = config.EngineNone
	}
	return NewRegistries().Wakes.New(ctx, name, Settings{Config: cfg, Logger: logger})
}

// NewOpener returns the playback opener for the configured player.
func NewOpener(cfg *config.Config, logger *slog.Logger) (playback.Opener, error) {
	switch cfg.Audio.Player {
	case "portaudio":
		return playback.PortAudioOpener(logger), nil
	case "ffplay":
		return playback.ProcessOpener(playback.FFPlayArgs, logger), nil
	default:
		return nil, errors.New("unknown player " + cfg.Audio.Player)
	}
}

// NewEffects loads the sound effects bank.
func NewEffects(cfg *config.Config, logger *slog.Logger) (*effects.Bank, error) {
	return effects.Load(effects.Config{
		Dir:    cfg.Audio.EffectsDir,
		Silent: cfg.Audio.SilentEffects,
		Logger: logger,
	})
}
