package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VA_LOG_LEVEL", "")
	t.Setenv("VA_LOG_FORMAT", "")

	cfg, err := Load("")
	is.NoErr(err)
	is.Equal(cfg.OpenAI.APIKey, "sk-test")
	is.Equal(cfg.Wake.Engine, EngineNone)
	is.Equal(cfg.STT.Engine, EngineOpenAI)
	is.Equal(cfg.TTS.Engine, EngineOpenAI)
	is.Equal(cfg.Conversation.GoodbyeMarker, "[bye]")
	is.Equal(cfg.LLM.IdleTimeout, 10.0)
	is.Equal(cfg.TTS.Timeout, 10.0)
	is.True(strings.HasSuffix(cfg.Conversation.SystemPrompt, "[bye]."))
}

func TestLoadFile(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELEVEN_LABS_API_KEY", "el-from-env")
	t.Setenv("VA_LOG_LEVEL", "")
	t.Setenv("VA_LOG_FORMAT", "")

	path := writeConfig(t, `
openai:
  api_key: sk-file
  chat_model: gpt-4o
conversation:
  silence_limit: 0.8
  standby_after: 15
wake:
  engine: onnx
  onnx:
    model_path: /models/hey.onnx
    keywords: [hey_there]
    threshold: 0.6
tts:
  engine: elevenlabs
  elevenlabs:
    voice_id: abc
logging:
  format: json
`)

	cfg, err := Load(path)
	is.NoErr(err)
	is.Equal(cfg.OpenAI.APIKey, "sk-file")
	is.Equal(cfg.OpenAI.ChatModel, "gpt-4o")
	is.Equal(cfg.OpenAI.STTModel, "whisper-1") // untouched defaults survive
	is.Equal(cfg.Conversation.SilenceLimit, 0.8)
	is.Equal(cfg.Conversation.SpeakingMinimum, 0.3)
	is.Equal(cfg.Wake.ONNX.Keywords, []string{"hey_there"})
	is.Equal(cfg.Wake.ONNX.Threshold, float32(0.6))
	is.Equal(cfg.TTS.ElevenLabs.VoiceID, "abc")
	is.Equal(cfg.TTS.ElevenLabs.ModelID, "eleven_multilingual_v2")
	is.Equal(cfg.TTS.ElevenLabs.APIKey, "el-from-env")
	is.Equal(cfg.Logging.Format, "json")
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVEN_LABS_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad yaml", body: "conversation: [", want: "failed to parse"},
		{name: "unknown wake engine", body: "wake:\n  engine: porcupine\n", want: "unknown engine"},
		{name: "onnx without model", body: "wake:\n  engine: onnx\n", want: "model_path"},
		{name: "websocket without url", body: "wake:\n  engine: websocket\n", want: "websocket.url"},
		{name: "elevenlabs without key", body: "tts:\n  engine: elevenlabs\n", want: "elevenlabs api key"},
		{name: "piper without model", body: "tts:\n  engine: piper\n", want: "piper.model"},
		{name: "whispercpp without model", body: "stt:\n  engine: whispercpp\n", want: "whispercpp.model"},
		{name: "silence longer than standby", body: "conversation:\n  silence_limit: 20\n", want: "shorter than standby_after"},
		{name: "negative timing", body: "conversation:\n  speaking_minimum: -1\n", want: "speaking_minimum"},
		{name: "zero llm idle timeout", body: "llm:\n  idle_timeout: 0\n", want: "idle_timeout"},
		{name: "zero tts timeout", body: "tts:\n  timeout: 0\n", want: "timeout must be positive"},
		{name: "bad player", body: "audio:\n  player: vlc\n", want: "player"},
		{name: "bad log level", body: "logging:\n  level: loud\n", want: "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			t.Setenv("VA_LOG_LEVEL", "")
			_, err := Load(writeConfig(t, tt.body))
			is.True(err != nil)
			is.True(strings.Contains(err.Error(), tt.want)) // error names the problem
		})
	}
}

func TestLoadRequiresOpenAIKey(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Load("")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "OPENAI_API_KEY"))
}

func TestValidateChat(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "")

	// Local engines load without an OpenAI key, but cannot chat.
	cfg, err := Load(writeConfig(t, "stt:\n  engine: whispercpp\n  whispercpp:\n    model: base.bin\ntts:\n  engine: espeak\n"))
	is.NoErr(err)
	is.True(cfg.ValidateChat() != nil)

	cfg.OpenAI.APIKey = "sk-test"
	is.NoErr(cfg.ValidateChat())
}

func TestLoadMissingFile(t *testing.T) {
	is := is.New(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	is.True(err != nil)
}

func TestEnvOverridesLogging(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VA_LOG_LEVEL", "debug")
	t.Setenv("VA_LOG_FORMAT", "json")

	cfg, err := Load(writeConfig(t, "logging:\n  level: warn\n"))
	is.NoErr(err)
	is.Equal(cfg.Logging.Level, "debug")
	is.Equal(cfg.Logging.Format, "json")
}

func TestFrames(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{0.3, 10},
		{0.5, 16},
		{1, 32},
		{10, 313},
		{20, 625},
		{60, 1875},
	}
	for _, tt := range tests {
		is := is.New(t)
		is.Equal(Frames(tt.seconds), tt.want)
	}
}
