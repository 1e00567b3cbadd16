// Package config loads the agent configuration from YAML, with secrets
// taken from the environment or a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/plugin/elevenlabs"
	"github.com/chriscow/voice-agent-go/pkg/plugin/espeak"
	"github.com/chriscow/voice-agent-go/pkg/plugin/onnxwake"
	"github.com/chriscow/voice-agent-go/pkg/plugin/openai"
	"github.com/chriscow/voice-agent-go/pkg/plugin/piper"
	"github.com/chriscow/voice-agent-go/pkg/plugin/whispercpp"
	"github.com/chriscow/voice-agent-go/pkg/plugin/wswake"
)

// Engine names.
const (
	EngineNone       = "none"
	EngineOpenAI     = "openai"
	EngineElevenLabs = "elevenlabs"
	EnginePiper      = "piper"
	EngineEspeak     = "espeak"
	EngineWhisperCpp = "whispercpp"
	EngineONNX       = "onnx"
	EngineWebSocket  = "websocket"
)

// DefaultSystemPrompt sets a short, informal persona and tells the model
// how to end the conversation.
const DefaultSystemPrompt = "You are a fun, witty and helpful assistant that gives only short answers, one sentence, tweet size. " +
	"You are informal and talk to the user like a friend would, not like a subservient assistant. " +
	"The user is talking to you by voice and your answer will be spoken out loud, so keep it a natural, fast-turns conversation. " +
	"Use simple spoken language, for example I'm rather than I am, and spell things out instead of using acronyms. " +
	"Reply in the language the user is talking to you, and stick to it. " +
	"Your replies are spoken by a TTS system in chunks, so use more commas and pauses than usual. " +
	"When the user says goodbye or wants to end the conversation, say goodbye and end your reply with [bye]."

// Config is the complete agent configuration.
type Config struct {
	Audio        AudioConfig        `yaml:"audio"`
	Conversation ConversationConfig `yaml:"conversation"`
	Interrupt    InterruptConfig    `yaml:"interrupt"`
	Wake         WakeConfig         `yaml:"wake"`
	STT          STTConfig          `yaml:"stt"`
	TTS          TTSConfig          `yaml:"tts"`
	LLM          LLMConfig          `yaml:"llm"`
	OpenAI       openai.Config      `yaml:"openai"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// AudioConfig selects devices and sound effects.
type AudioConfig struct {
	// DeviceIndex of the microphone; negative uses the system default.
	DeviceIndex int `yaml:"device_index"`
	// SilenceThreshold is the frame RMS below which audio is silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`
	// Player is portaudio or ffplay.
	Player        string `yaml:"player"`
	EffectsDir    string `yaml:"effects_dir"`
	SilentEffects bool   `yaml:"silent_effects"`
}

// ConversationConfig holds the turn-taking timings, in seconds.
type ConversationConfig struct {
	SilenceLimit    float64 `yaml:"silence_limit"`
	SpeakingMinimum float64 `yaml:"speaking_minimum"`
	StandbyAfter    float64 `yaml:"standby_after"`
	TranscribeEvery float64 `yaml:"transcribe_every"`
	WakeBuffer      float64 `yaml:"wake_buffer"`
	ListenBuffer    float64 `yaml:"listen_buffer"`
	FinalizeTimeout float64 `yaml:"finalize_timeout"`
	// ThinkingAfter plays a beep when a reply has not started speaking in
	// time. Zero disables it.
	ThinkingAfter float64 `yaml:"thinking_after"`

	SystemPrompt  string `yaml:"system_prompt"`
	GoodbyeMarker string `yaml:"goodbye_marker"`
	MinWords      int    `yaml:"min_words"`
	MaxWords      int    `yaml:"max_words"`
}

// InterruptConfig exposes the interruption calibration that usually needs
// tuning per machine.
type InterruptConfig struct {
	PlaybackLatencyFrames int     `yaml:"playback_latency_frames"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`
	LogVolumeMargin       float64 `yaml:"log_volume_margin"`
	VolumeThreshold       float64 `yaml:"volume_threshold"`
}

// WakeConfig selects the wake-phrase engine. none keeps the agent always
// listening.
type WakeConfig struct {
	Engine    string          `yaml:"engine"`
	ONNX      onnxwake.Config `yaml:"onnx"`
	WebSocket wswake.Config   `yaml:"websocket"`
}

// STTConfig selects the transcriber and the chunking around it.
type STTConfig struct {
	Engine         string            `yaml:"engine"`
	MinAudio       float64           `yaml:"min_audio"`
	Wait           float64           `yaml:"wait"`
	RequestTimeout float64           `yaml:"request_timeout"`
	WhisperCpp     whispercpp.Config `yaml:"whispercpp"`
}

// TTSConfig selects the synthesizer.
type TTSConfig struct {
	Engine string `yaml:"engine"`
	// Timeout in seconds without audio before an utterance is abandoned.
	Timeout    float64           `yaml:"timeout"`
	ElevenLabs elevenlabs.Config `yaml:"elevenlabs"`
	Piper      piper.Config      `yaml:"piper"`
	Espeak     espeak.Config     `yaml:"espeak"`
}

// LLMConfig bounds the chat request.
type LLMConfig struct {
	ConnectTimeout float64 `yaml:"connect_timeout"`
	// IdleTimeout in seconds without a delta before the reply fails.
	IdleTimeout float64 `yaml:"idle_timeout"`
}

// LoggingConfig mirrors VA_LOG_LEVEL and VA_LOG_FORMAT; the environment wins.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			DeviceIndex:      -1,
			SilenceThreshold: 300,
			Player:           "portaudio",
		},
		Conversation: ConversationConfig{
			SilenceLimit:    0.5,
			SpeakingMinimum: 0.3,
			StandbyAfter:    10,
			TranscribeEvery: 1,
			WakeBuffer:      20,
			ListenBuffer:    60,
			FinalizeTimeout: 10,
			ThinkingAfter:   2,
			SystemPrompt:    DefaultSystemPrompt,
			GoodbyeMarker:   "[bye]",
			MinWords:        2,
			MaxWords:        100,
		},
		Wake: WakeConfig{
			Engine: EngineNone,
		},
		STT: STTConfig{
			Engine:         EngineOpenAI,
			MinAudio:       0.1,
			Wait:           3,
			RequestTimeout: 5,
		},
		TTS: TTSConfig{
			Engine:     EngineOpenAI,
			Timeout:    10,
			ElevenLabs: elevenlabs.DefaultConfig(),
		},
		LLM: LLMConfig{
			ConnectTimeout: 3,
			IdleTimeout:    10,
		},
		OpenAI: openai.Config{
			ChatModel: "gpt-4o-mini",
			STTModel:  "whisper-1",
			TTSModel:  "tts-1",
			Voice:     "alloy",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a .env file if present, then the YAML file at path over the
// defaults. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.TTS.ElevenLabs.APIKey == "" {
		c.TTS.ElevenLabs.APIKey = firstEnv("ELEVEN_LABS_API_KEY", "ELEVENLABS_API_KEY")
	}
	if c.Wake.WebSocket.Token == "" {
		c.Wake.WebSocket.Token = os.Getenv("VA_WAKE_TOKEN")
	}
	if v := os.Getenv("VA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VA_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Frames converts seconds to capture frames, rounding up.
func Frames(seconds float64) int {
	return audio.FramesIn(Duration(seconds))
}

// Duration converts seconds to a time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
