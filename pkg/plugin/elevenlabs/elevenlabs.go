// Package elevenlabs synthesizes speech with the ElevenLabs streaming API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/version"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// DefaultTimeout bounds a whole request, audio stream included.
const DefaultTimeout = 30 * time.Second

// Config configures the ElevenLabs synthesizer.
type Config struct {
	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string `yaml:"base_url"`

	// Timeout applies when HTTPClient is not set.
	Timeout    time.Duration `yaml:"-"`
	HTTPClient *http.Client  `yaml:"-"`
	Logger     *slog.Logger  `yaml:"-"`
}

// DefaultConfig returns the stock voice settings.
func DefaultConfig() Config {
	return Config{
		VoiceID:         "pNInz6obpgDQGcFmaJgB",
		ModelID:         "eleven_multilingual_v2",
		Stability:       1,
		SimilarityBoost: 0.75,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if c.VoiceID == "" {
		c.VoiceID = d.VoiceID
	}
	if c.ModelID == "" {
		c.ModelID = d.ModelID
	}
	if c.Stability == 0 {
		c.Stability = d.Stability
	}
	if c.SimilarityBoost == 0 {
		c.SimilarityBoost = d.SimilarityBoost
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.HTTPClient == nil {
		if c.Timeout <= 0 {
			c.Timeout = DefaultTimeout
		}
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Synthesizer implements tts.Synthesizer. Audio is requested as 16 kHz PCM.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates a synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required (set ELEVENLABS_API_KEY or provide api_key in config)")
	}
	return &Synthesizer{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "elevenlabs"))}, nil
}

// Format returns 16 kHz mono.
func (s *Synthesizer) Format() audio.Format {
	return audio.Mono16k
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type request struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize starts a streaming request for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream")
	if err != nil {
		return nil, ai.NewFatalError(err, "elevenlabs url")
	}
	q := u.Query()
	q.Set("output_format", "pcm_16000")
	u.RawQuery = q.Encode()

	body, err := json.Marshal(request{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       s.cfg.Stability,
			SimilarityBoost: s.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, ai.NewFatalError(err, "encode elevenlabs request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, ai.NewFatalError(err, "build elevenlabs request")
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ai.NewRecoverableError(err, "elevenlabs request")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, ai.NewRecoverableError(err, "elevenlabs")
		}
		return nil, ai.NewFatalError(err, "elevenlabs")
	}

	chunks := make(chan []byte, 16)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		first := true
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if first {
					s.logger.Debug("Receiving audio stream", slog.Int("first_chunk", n))
					first = false
				}
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					s.logger.Error("Read audio stream", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()
	return chunks, nil
}
