package engines

import (
	"context"
	"log/slog"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/config"
	"github.com/chriscow/voice-agent-go/pkg/conversation"
	"github.com/chriscow/voice-agent-go/pkg/event"
	"github.com/chriscow/voice-agent-go/pkg/interrupt"
	"github.com/chriscow/voice-agent-go/pkg/metrics"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/chriscow/voice-agent-go/pkg/playback/effects"
	"github.com/chriscow/voice-agent-go/pkg/reply"
	"github.com/chriscow/voice-agent-go/pkg/voice"
)

// Deps are what the machine needs besides configuration.
type Deps struct {
	Engines *Set
	// Effects may be nil to run without sound effects.
	Effects reply.EffectPlayer
	Open    playback.Opener
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewPipeline builds the reply pipeline: LLM with one retry, segmenter and
// an ordered speaker per reply.
func NewPipeline(cfg *config.Config, d Deps) *reply.Pipeline {
	m := d.Metrics
	conv := cfg.Conversation

	client := llm.WithRetry(d.Engines.LLM, llm.RetryOptions{
		ConnectTimeout: config.Duration(cfg.LLM.ConnectTimeout),
		IdleTimeout:    config.Duration(cfg.LLM.IdleTimeout),
		Logger:         d.Logger,
		OnRetry:        m.RecordLLMRetry,
	})

	return reply.NewPipeline(reply.Config{
		LLM: client,
		NewEngine: func(ctx context.Context, emit event.Emitter) tts.Engine {
			return reply.NewSpeaker(ctx, reply.SpeakerConfig{
				Synth:            d.Engines.Synth,
				Open:             d.Open,
				Emit:             emit,
				MinWords:         conv.MinWords,
				SynthesisTimeout: config.Duration(cfg.TTS.Timeout),
				Logger:           d.Logger,
				OnUtterance:      func(time.Duration) { m.RecordUtterance() },
			})
		},
		Effects:        d.Effects,
		ErrorEffect:    effects.Error,
		ThinkingEffect: effects.Wake,
		ThinkingAfter:  config.Duration(conv.ThinkingAfter),
		Segmenter: reply.SegmenterConfig{
			MinWords:      conv.MinWords,
			MaxWords:      conv.MaxWords,
			GoodbyeMarker: conv.GoodbyeMarker,
		},
		Logger:       d.Logger,
		OnFirstAudio: m.ObserveFirstAudio,
		OnFailure:    func(error) { m.RecordReplyFailure() },
	})
}

// NewMachine wires the engines into a conversation machine.
func NewMachine(cfg *config.Config, d Deps) (*conversation.Machine, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	conv := cfg.Conversation

	transcriber := stt.NewChunked(d.Engines.Transcriber, stt.ChunkedConfig{
		MinAudio:       config.Duration(cfg.STT.MinAudio),
		Wait:           config.Duration(cfg.STT.Wait),
		RequestTimeout: config.Duration(cfg.STT.RequestTimeout),
		Logger:         d.Logger,
		Observe:        d.Metrics.ObserveTranscription,
	})

	ic := interrupt.DefaultConfig()
	if v := cfg.Interrupt.PlaybackLatencyFrames; v > 0 {
		ic.PlaybackLatencyFrames = v
	}
	if v := cfg.Interrupt.SimilarityThreshold; v > 0 {
		ic.SimilarityThreshold = v
	}
	if v := cfg.Interrupt.LogVolumeMargin; v > 0 {
		ic.LogVolumeMargin = v
	}
	if v := cfg.Interrupt.VolumeThreshold; v > 0 {
		ic.VolumeThreshold = v
	} else {
		ic.VolumeThreshold = cfg.Audio.SilenceThreshold
	}
	ic.Logger = d.Logger

	return conversation.New(conversation.Config{
		Gate:               voice.NewGate(cfg.Audio.SilenceThreshold),
		Wake:               d.Engines.Wake,
		STT:                transcriber,
		Replier:            NewPipeline(cfg, d),
		Effects:            d.Effects,
		Transcript:         conversation.NewTranscript(conv.SystemPrompt),
		SilenceLimit:       config.Frames(conv.SilenceLimit),
		SpeakingMinimum:    config.Frames(conv.SpeakingMinimum),
		StandbyAfter:       config.Frames(conv.StandbyAfter),
		TranscribeEvery:    config.Frames(conv.TranscribeEvery),
		WakeBufferFrames:   config.Frames(conv.WakeBuffer),
		ListenBufferFrames: config.Frames(conv.ListenBuffer),
		FinalizeTimeout:    config.Duration(conv.FinalizeTimeout),
		WakeEffect:         effects.Wake,
		StandbyEffect:      effects.Standby,
		ErrorEffect:        effects.Error,
		Interrupt:          ic,
		Metrics:            d.Metrics,
		Logger:             d.Logger,
	})
}
