package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}
	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake config: %w", err)
	}
	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if c.LLM.ConnectTimeout <= 0 || c.LLM.IdleTimeout <= 0 {
		return errors.New("llm config: connect_timeout and idle_timeout must be positive")
	}
	if c.OpenAI.APIKey == "" && (c.STT.Engine == EngineOpenAI || c.TTS.Engine == EngineOpenAI) {
		return errors.New("openai config: api key is required (set OPENAI_API_KEY or openai.api_key)")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// ValidateChat checks what is needed to generate replies, on top of
// Validate. Commands that only transcribe or speak skip it.
func (c *Config) ValidateChat() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("openai config: api key is required for chat (set OPENAI_API_KEY or openai.api_key)")
	}
	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %v", a.SilenceThreshold)
	}
	if a.Player != "portaudio" && a.Player != "ffplay" {
		return fmt.Errorf("player must be portaudio or ffplay, got %q", a.Player)
	}
	return nil
}

// Validate validates conversation timings.
func (c *ConversationConfig) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"silence_limit", c.SilenceLimit},
		{"speaking_minimum", c.SpeakingMinimum},
		{"standby_after", c.StandbyAfter},
		{"transcribe_every", c.TranscribeEvery},
		{"wake_buffer", c.WakeBuffer},
		{"listen_buffer", c.ListenBuffer},
		{"finalize_timeout", c.FinalizeTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.value)
		}
	}
	if c.ThinkingAfter < 0 {
		return fmt.Errorf("thinking_after cannot be negative, got %v", c.ThinkingAfter)
	}
	if c.SilenceLimit >= c.StandbyAfter {
		return fmt.Errorf("silence_limit (%v) must be shorter than standby_after (%v)", c.SilenceLimit, c.StandbyAfter)
	}
	if c.MinWords < 1 {
		return fmt.Errorf("min_words must be at least 1, got %d", c.MinWords)
	}
	if c.MaxWords < c.MinWords {
		return fmt.Errorf("max_words (%d) must be at least min_words (%d)", c.MaxWords, c.MinWords)
	}
	if c.GoodbyeMarker == "" {
		return errors.New("goodbye_marker cannot be empty")
	}
	return nil
}

// Validate validates the wake engine selection.
func (w *WakeConfig) Validate() error {
	switch w.Engine {
	case EngineNone:
	case EngineONNX:
		if w.ONNX.ModelPath == "" {
			return errors.New("onnx.model_path is required")
		}
	case EngineWebSocket:
		if w.WebSocket.URL == "" {
			return errors.New("websocket.url is required")
		}
	default:
		return fmt.Errorf("unknown engine %q", w.Engine)
	}
	return nil
}

// Validate validates the transcriber selection.
func (s *STTConfig) Validate() error {
	switch s.Engine {
	case EngineOpenAI:
	case EngineWhisperCpp:
		if s.WhisperCpp.Model == "" {
			return errors.New("whispercpp.model is required")
		}
	default:
		return fmt.Errorf("unknown engine %q", s.Engine)
	}
	if s.MinAudio < 0 || s.Wait <= 0 || s.RequestTimeout <= 0 {
		return errors.New("min_audio cannot be negative; wait and request_timeout must be positive")
	}
	return nil
}

// Validate validates the synthesizer selection.
func (t *TTSConfig) Validate() error {
	if t.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	switch t.Engine {
	case EngineOpenAI, EngineEspeak:
	case EngineElevenLabs:
		if t.ElevenLabs.APIKey == "" {
			return errors.New("elevenlabs api key is required (set ELEVEN_LABS_API_KEY or tts.elevenlabs.api_key)")
		}
	case EnginePiper:
		if t.Piper.Model == "" {
			return errors.New("piper.model is required")
		}
	default:
		return fmt.Errorf("unknown engine %q", t.Engine)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, l.Level) {
		return fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}
	if l.Format != "console" && l.Format != "json" {
		return fmt.Errorf("format must be console or json, got %q", l.Format)
	}
	return nil
}
