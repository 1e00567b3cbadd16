// Package openai provides the OpenAI-backed engines: streaming chat for
// replies, Whisper for transcription and the speech endpoint for synthesis.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Config holds configuration shared by the OpenAI engines.
type Config struct {
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the API endpoint, e.g. for a compatible server.
	BaseURL string `yaml:"base_url"`

	ChatModel   string  `yaml:"chat_model"`  // Default: gpt-4o-mini
	Temperature float32 `yaml:"temperature"` // Default: server side
	MaxTokens   int     `yaml:"max_tokens"`

	STTModel string `yaml:"stt_model"` // Default: whisper-1
	Language string `yaml:"language"`  // Default: auto-detect (empty)

	TTSModel string  `yaml:"tts_model"` // Default: tts-1
	Voice    string  `yaml:"voice"`     // Default: alloy
	Speed    float64 `yaml:"speed"`

	Logger *slog.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.ChatModel == "" {
		c.ChatModel = openai.GPT4oMini
	}
	if c.STTModel == "" {
		c.STTModel = openai.Whisper1
	}
	if c.TTSModel == "" {
		c.TTSModel = string(openai.TTSModel1)
	}
	if c.Voice == "" {
		c.Voice = string(openai.VoiceAlloy)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func newClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// classify marks request errors as fatal when retrying cannot help.
func classify(ctx context.Context, err error, message string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return ai.NewFatalError(err, message)
	default:
		return ai.NewRecoverableError(err, message)
	}
}
