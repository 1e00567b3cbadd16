package reply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/event"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/google/uuid"
)

// EffectPlayer plays a named sound effect without blocking.
type EffectPlayer interface {
	Play(name string) playback.Handle
}

// Config configures a Pipeline.
type Config struct {
	LLM llm.Client
	// NewEngine builds the speech engine for one reply.
	NewEngine func(ctx context.Context, emit event.Emitter) tts.Engine
	Effects   EffectPlayer
	// ErrorEffect is played instead of a reply that could not be generated.
	ErrorEffect string
	// ThinkingEffect is requested via a PlayBeep event when no audio has
	// started ThinkingAfter into the reply. Zero disables it.
	ThinkingEffect string
	ThinkingAfter  time.Duration
	Segmenter      SegmenterConfig
	Logger         *slog.Logger
	// OnFirstAudio, if set, receives the delay from request to first audio.
	OnFirstAudio func(time.Duration)
	// OnFailure, if set, is called when a reply falls back to the error effect.
	OnFailure func(err error)
}

// Pipeline runs replies. It holds no per-reply state and may run replies
// concurrently, though the conversation only ever runs one.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.ErrorEffect == "" {
		cfg.ErrorEffect = "error"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger.With(slog.String("component", "reply"))}
}

// Run streams a reply to messages and speaks it, reporting progress through
// emit. It returns when playback has finished or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, messages []llm.Message, emit event.Emitter) {
	start := time.Now()
	emit = p.observe(ctx, start, emit)

	stream, err := p.cfg.LLM.StreamChat(ctx, messages)
	if err != nil {
		p.fail(ctx, err, emit)
		return
	}
	defer stream.Close()

	engine := p.cfg.NewEngine(ctx, withoutEnd(emit))
	segCfg := p.cfg.Segmenter
	segCfg.MinWords = engine.MinWords()
	seg := NewSegmenter(segCfg)

	first := true
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			engine.Stop()
			engine.WaitToFinish(ctx)
			p.fail(ctx, err, emit)
			return
		}
		if first {
			p.logger.Info("Reply started", slog.Duration("latency", time.Since(start)))
			first = false
		}

		utterances, capped := seg.Push(delta)
		for _, u := range utterances {
			engine.Consume(ctx, u)
		}
		if capped {
			p.logger.Info("Reply word cap reached")
			break
		}
	}

	engine.Consume(ctx, seg.Flush())

	// Sent before Finish so it always precedes ReplyAudioEnded.
	emit(event.Event{
		Kind:      event.AssistantMessage,
		Text:      seg.Text(),
		Goodbye:   seg.Goodbye(),
		MessageID: uuid.NewString(),
	})
	p.logger.Info("Reply generated", slog.String("text", seg.Text()), slog.Bool("goodbye", seg.Goodbye()))
	engine.Finish()

	if err := engine.WaitToFinish(ctx); err != nil {
		engine.Stop()
		p.fail(ctx, err, emit)
		return
	}
	emit(event.Event{Kind: event.ReplyAudioEnded})
}

// withoutEnd drops the engine's ReplyAudioEnded. Run sends its own once the
// reply, or the error clip replacing it, is over.
func withoutEnd(emit event.Emitter) event.Emitter {
	return func(ev event.Event) {
		if ev.Kind != event.ReplyAudioEnded {
			emit(ev)
		}
	}
}

// observe wraps emit to time the first audio and to request the thinking
// effect when audio is slow to start.
func (p *Pipeline) observe(ctx context.Context, start time.Time, emit event.Emitter) event.Emitter {
	started := make(chan struct{})
	if p.cfg.ThinkingAfter > 0 && p.cfg.ThinkingEffect != "" {
		go func() {
			timer := time.NewTimer(p.cfg.ThinkingAfter)
			defer timer.Stop()
			select {
			case <-timer.C:
				emit(event.Event{Kind: event.PlayBeep, Effect: p.cfg.ThinkingEffect})
			case <-started:
			case <-ctx.Done():
			}
		}()
	}

	var once sync.Once
	return func(ev event.Event) {
		switch ev.Kind {
		case event.ReplyAudioStarted:
			once.Do(func() {
				close(started)
				if p.cfg.OnFirstAudio != nil {
					p.cfg.OnFirstAudio(time.Since(start))
				}
			})
		case event.ReplyAudioEnded:
			once.Do(func() { close(started) })
		}
		emit(ev)
	}
}

// fail plays the error effect in place of the reply.
func (p *Pipeline) fail(ctx context.Context, err error, emit event.Emitter) {
	if ctx.Err() != nil {
		return
	}
	p.logger.Error("Reply failed", slog.String("error", err.Error()))
	if p.cfg.OnFailure != nil {
		p.cfg.OnFailure(err)
	}

	h := playback.Finished()
	if p.cfg.Effects != nil {
		h = p.cfg.Effects.Play(p.cfg.ErrorEffect)
	}
	emit(event.Event{Kind: event.ReplyAudioStarted, Handle: h})
	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Kill()
	}
	emit(event.Event{Kind: event.ReplyAudioEnded})
}
