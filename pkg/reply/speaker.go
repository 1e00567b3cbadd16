package reply

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/event"
	"github.com/chriscow/voice-agent-go/pkg/playback"
)

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	Synth    tts.Synthesizer
	Open     playback.Opener
	Emit     event.Emitter
	MinWords int
	// SynthesisTimeout abandons an utterance that produces no audio for
	// this long; playback skips to the next one.
	SynthesisTimeout time.Duration
	Logger           *slog.Logger
	// OnUtterance, if set, is called once per utterance with its synthesis time.
	OnUtterance func(time.Duration)
}

// DefaultSynthesisTimeout is used when SpeakerConfig leaves it zero.
const DefaultSynthesisTimeout = 10 * time.Second

// Speaker is the tts.Engine for one reply. Each consumed utterance gets the
// next sequence index and is synthesized on its own goroutine; a single
// player goroutine writes the audio to the sink strictly in index order.
type Speaker struct {
	cfg    SpeakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[int]*chunkQueue
	next     int
	playing  int
	finished bool
	stopped  bool
	sink     playback.Sink
	failure  error

	done chan struct{}
	stop func() bool
}

// chunkQueue holds synthesized audio for one utterance until it is played.
type chunkQueue struct {
	chunks [][]byte
	done   bool
}

var _ tts.Engine = (*Speaker)(nil)

// NewSpeaker starts the player goroutine. Cancelling ctx stops the speaker.
func NewSpeaker(ctx context.Context, cfg SpeakerConfig) *Speaker {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultSegmenterConfig().MinWords
	}
	if cfg.Emit == nil {
		cfg.Emit = func(event.Event) {}
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = DefaultSynthesisTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Speaker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "speaker")),
		queues: make(map[int]*chunkQueue),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.stop = context.AfterFunc(ctx, s.Stop)

	go s.play()
	return s
}

// Consume assigns text the next index and starts synthesizing it.
func (s *Speaker) Consume(ctx context.Context, text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.stopped || s.finished {
		s.mu.Unlock()
		return
	}
	index := s.next
	s.next++
	s.queues[index] = &chunkQueue{}
	s.mu.Unlock()

	s.logger.Debug("Utterance queued", slog.Int("index", index), slog.String("text", text))
	go s.synthesize(ctx, index, text)
}

func (s *Speaker) synthesize(ctx context.Context, index int, text string) {
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.queues[index].done = true
		s.cond.Broadcast()
		s.mu.Unlock()
		if s.cfg.OnUtterance != nil {
			s.cfg.OnUtterance(time.Since(start))
		}
	}()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	idle := time.AfterFunc(s.cfg.SynthesisTimeout, cancel)
	defer idle.Stop()

	chunks, err := s.cfg.Synth.Synthesize(sctx, text)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case sctx.Err() != nil:
			s.logger.Warn("Synthesis timed out", slog.Int("index", index))
			s.fail(ai.NewRecoverableError(context.DeadlineExceeded, "synthesis timed out"))
		default:
			s.logger.Error("Synthesis failed", slog.Int("index", index), slog.String("error", err.Error()))
			s.fail(err)
		}
		return
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			idle.Reset(s.cfg.SynthesisTimeout)
			if len(chunk) == 0 {
				continue
			}
			s.mu.Lock()
			s.queues[index].chunks = append(s.queues[index].chunks, chunk)
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-sctx.Done():
			if ctx.Err() == nil {
				s.logger.Warn("Synthesis stalled, skipping utterance", slog.Int("index", index))
				s.fail(ai.NewRecoverableError(context.DeadlineExceeded, "synthesis stalled"))
			}
			return
		}
	}
}

// play is the only writer to the sink.
func (s *Speaker) play() {
	defer close(s.done)

	var carry []byte
	format := s.cfg.Synth.Format()

	for {
		s.mu.Lock()
		for !s.stopped && !s.ready() {
			s.cond.Wait()
		}
		if s.stopped || (s.finished && s.playing == s.next) {
			s.mu.Unlock()
			break
		}

		q := s.queues[s.playing]
		if len(q.chunks) == 0 {
			// ready() guarantees q.done here.
			delete(s.queues, s.playing)
			s.playing++
			s.mu.Unlock()
			continue
		}
		chunk := q.chunks[0]
		q.chunks = q.chunks[1:]
		sink := s.sink
		s.mu.Unlock()

		if sink == nil {
			var err error
			if sink, err = s.openSink(format); err != nil {
				s.logger.Error("Cannot open playback", slog.String("error", err.Error()))
				s.fail(err)
				s.Stop()
				break
			}
		}

		if _, err := sink.Write(chunk); err != nil {
			if !errors.Is(err, playback.ErrKilled) {
				s.logger.Error("Playback write failed", slog.String("error", err.Error()))
			}
			s.Stop()
			break
		}

		pcm := append(carry, chunk...)
		even := len(pcm) &^ 1
		carry = append([]byte(nil), pcm[even:]...)
		s.cfg.Emit(event.Event{Kind: event.ReplyAudio, Samples: toCapture(pcm[:even], format)})
	}

	s.mu.Lock()
	sink, stopped := s.sink, s.stopped
	s.mu.Unlock()

	if !stopped {
		s.cfg.Emit(event.Event{Kind: event.ReplyAudio, Final: true})
	}
	if sink != nil {
		if err := sink.Close(); err != nil && !stopped {
			s.logger.Error("Playback failed", slog.String("error", err.Error()))
		}
	}
	s.stop()
	s.cfg.Emit(event.Event{Kind: event.ReplyAudioEnded})
}

// ready reports whether the player has something to do. Caller holds mu.
func (s *Speaker) ready() bool {
	if s.finished && s.playing == s.next {
		return true
	}
	q, ok := s.queues[s.playing]
	return ok && (len(q.chunks) > 0 || q.done)
}

func (s *Speaker) openSink(format audio.Format) (playback.Sink, error) {
	sink, err := s.cfg.Open(format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		sink.Handle().Kill()
		return nil, playback.ErrKilled
	}
	s.sink = sink
	s.mu.Unlock()

	s.logger.Info("First audio chunk arrived", slog.String("format", format.String()))
	s.cfg.Emit(event.Event{Kind: event.ReplyAudioStarted, Handle: sink.Handle()})
	return sink, nil
}

// toCapture converts synthesized PCM to capture-rate mono samples.
func toCapture(pcm []byte, format audio.Format) []int16 {
	samples := audio.DecodePCM(pcm)
	if format.Channels == 2 {
		mono := make([]int16, len(samples)/2)
		for i := range mono {
			mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
		}
		samples = mono
	}
	if format.SampleRate == audio.SampleRate {
		return samples
	}
	return audio.Resample(samples, format.SampleRate, audio.SampleRate)
}

// Finish marks the end of the reply. The player exits once everything
// queued so far has been played.
func (s *Speaker) Finish() {
	s.mu.Lock()
	s.finished = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitToFinish calls Finish and blocks until playback is over. When no
// audio reached the sink it returns the last synthesis or playback error.
func (s *Speaker) WaitToFinish(ctx context.Context) error {
	s.Finish()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return s.failure
	}
	return nil
}

func (s *Speaker) fail(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

func (s *Speaker) MinWords() int {
	return s.cfg.MinWords
}

// Stop abandons pending utterances and kills playback.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	sink := s.sink
	s.cond.Broadcast()
	s.mu.Unlock()

	if sink != nil {
		sink.Handle().Kill()
	}
}

// Done is closed when the player goroutine has exited.
func (s *Speaker) Done() <-chan struct{} {
	return s.done
}
