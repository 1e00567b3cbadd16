package conversation

import (
	"context"
	"errors"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	llmfake "github.com/chriscow/voice-agent-go/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/voice-agent-go/pkg/ai/stt/fake"
	"github.com/chriscow/voice-agent-go/pkg/ai/tts"
	ttsfake "github.com/chriscow/voice-agent-go/pkg/ai/tts/fake"
	wakefake "github.com/chriscow/voice-agent-go/pkg/ai/wake/fake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/event"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/chriscow/voice-agent-go/pkg/reply"
	"github.com/google/uuid"
	"github.com/matryer/is"
)

var (
	quiet  = make(audio.Frame, audio.FrameLength)
	speech = loudFrame()
)

func loudFrame() audio.Frame {
	f := make(audio.Frame, audio.FrameLength)
	for i := range f {
		if i%2 == 0 {
			f[i] = 2000
		} else {
			f[i] = -2000
		}
	}
	return f
}

type scriptedReplier struct {
	mu       sync.Mutex
	requests [][]llm.Message
	script   func(ctx context.Context, emit event.Emitter)
}

func (r *scriptedReplier) Run(ctx context.Context, messages []llm.Message, emit event.Emitter) {
	r.mu.Lock()
	r.requests = append(r.requests, messages)
	r.mu.Unlock()
	if r.script != nil {
		r.script(ctx, emit)
	}
}

func (r *scriptedReplier) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func replyWith(text string, goodbye bool) func(context.Context, event.Emitter) {
	return func(ctx context.Context, emit event.Emitter) {
		emit(event.Event{Kind: event.AssistantMessage, Text: text, MessageID: uuid.NewString(), Goodbye: goodbye})
		emit(event.Event{Kind: event.ReplyAudioStarted, Handle: playback.Finished()})
		emit(event.Event{Kind: event.ReplyAudioEnded})
	}
}

type fakeEffects struct {
	mu     sync.Mutex
	played []string
}

func (f *fakeEffects) Play(name string) playback.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, name)
	return playback.Finished()
}

func (f *fakeEffects) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

func newMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func tickN(m *Machine, frame audio.Frame, n int) {
	for i := 0; i < n; i++ {
		m.Tick(frame)
	}
}

// tickUntil ticks frame at a fast pace until cond holds, giving background
// work time to report back.
func tickUntil(t *testing.T, m *Machine, frame audio.Frame, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m.Tick(frame)
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached, state %s", m.State())
}

func transitions(m *Machine, key string) int64 {
	v := m.Stats().StateTransitions.Get(key)
	if v == nil {
		return 0
	}
	return v.(*expvar.Int).Value()
}

func TestMachine_New(t *testing.T) {
	is := is.New(t)

	_, err := New(Config{Replier: &scriptedReplier{}})
	is.True(err != nil) // STT required

	_, err = New(Config{STT: sttfake.NewFakeEngine("")})
	is.True(err != nil) // replier required

	m := newMachine(t, Config{STT: sttfake.NewFakeEngine(""), Replier: &scriptedReplier{}})
	is.Equal(m.State(), WaitingForSilence) // no wake engine

	m = newMachine(t, Config{STT: sttfake.NewFakeEngine(""), Replier: &scriptedReplier{}, Wake: wakefake.NewFakeWake()})
	is.Equal(m.State(), WaitingForWakeup)
}

func TestMachine_StartReplyAtExpectedFrame(t *testing.T) {
	is := is.New(t)

	replier := &scriptedReplier{script: replyWith("hi", false)}
	m := newMachine(t, Config{STT: sttfake.NewFakeEngine("hello"), Replier: replier})

	var frames []audio.Frame
	for i := 0; i < 20; i++ {
		frames = append(frames, quiet)
	}
	for i := 0; i < 15; i++ {
		frames = append(frames, speech)
	}
	for i := 0; i < 30; i++ {
		frames = append(frames, quiet)
	}

	left := -1
	for i, f := range frames {
		m.Tick(f)
		if left == -1 && m.State() != WaitingForSilence {
			left = i
			is.Equal(m.State(), StartReply)
		}
	}
	// 16 silent frames (0.5s) after the last of 15 speech frames
	is.Equal(left, 20+15+16-1)

	tickUntil(t, m, quiet, func() bool { return transitions(m, "Replying_to_WaitingForSilence") == 1 })
	is.Equal(transitions(m, "WaitingForSilence_to_StartReply"), int64(1))
	is.Equal(replier.calls(), 1)

	msgs := m.Transcript().Messages()
	is.Equal(msgs, []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi"},
	})
}

func TestMachine_ShortSoundIsNotATurn(t *testing.T) {
	is := is.New(t)

	stt := sttfake.NewFakeEngine("hello")
	m := newMachine(t, Config{STT: stt, Replier: &scriptedReplier{}})

	tickN(m, speech, 5) // below the 10 frame minimum
	tickN(m, quiet, 40)

	is.Equal(m.State(), WaitingForSilence)
	is.Equal(m.speaking, 0) // reset after twice the silence limit
	is.Equal(stt.Restarts(), 1)
}

func TestMachine_Standby(t *testing.T) {
	t.Run("without wake engine", func(t *testing.T) {
		is := is.New(t)
		fx := &fakeEffects{}
		m := newMachine(t, Config{STT: sttfake.NewFakeEngine(""), Replier: &scriptedReplier{}, Effects: fx})

		tickN(m, quiet, 400)
		is.Equal(m.State(), WaitingForSilence) // nothing to wake us up again
		is.Equal(len(fx.names()), 0)
	})

	t.Run("with wake engine", func(t *testing.T) {
		is := is.New(t)
		fx := &fakeEffects{}
		wake := wakefake.NewFakeWake(0)
		m := newMachine(t, Config{STT: sttfake.NewFakeEngine(""), Replier: &scriptedReplier{}, Effects: fx, Wake: wake})

		m.Tick(quiet)
		is.Equal(m.State(), WaitingForSilence)
		is.Equal(fx.names(), []string{"beep2"})

		tickN(m, quiet, 312)
		is.Equal(m.State(), WaitingForSilence)
		m.Tick(quiet) // 313 frames is 10s
		is.Equal(m.State(), WaitingForWakeup)
		is.Equal(fx.names(), []string{"beep2", "byebye"})

		tickN(m, quiet, 5)
		is.Equal(m.State(), WaitingForWakeup)
		wake.Trigger()
		m.Tick(quiet)
		is.Equal(m.State(), WaitingForSilence) // round trip
	})
}

func TestMachine_EmptyTranscriptionBailsOut(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		err        error
		wantEffect []string
	}{
		{"empty", "", nil, nil},
		{"whitespace", "  \n ", nil, nil},
		{"no speech recognised", "", ai.ErrEmptyTranscription, nil},
		{"transcriber failed", "", errors.New("boom"), []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			stt := sttfake.NewFakeEngine("")
			stt.SetResult(tt.text, tt.err)
			replier := &scriptedReplier{}
			fx := &fakeEffects{}
			m := newMachine(t, Config{STT: stt, Replier: replier, Effects: fx})

			tickN(m, speech, 15)
			tickN(m, quiet, 16)
			is.Equal(m.State(), StartReply)

			tickUntil(t, m, quiet, func() bool { return m.State() == WaitingForSilence })
			is.Equal(replier.calls(), 0)
			is.Equal(m.Transcript().Len(), 0)
			is.Equal(fx.names(), tt.wantEffect)
		})
	}
}

func TestMachine_AssistantMessageAppendedOnce(t *testing.T) {
	is := is.New(t)

	m := newMachine(t, Config{STT: sttfake.NewFakeEngine(""), Replier: &scriptedReplier{}})
	m.turn = 7

	ev := event.Event{Kind: event.AssistantMessage, TurnID: 7, MessageID: "m1", Text: "hi", Goodbye: true}
	m.handle(ev)
	m.handle(ev)
	is.Equal(m.Transcript().Len(), 1)
	is.True(m.goodbye)

	stale := event.Event{Kind: event.AssistantMessage, TurnID: 6, MessageID: "m2", Text: "old"}
	m.handle(stale)
	is.Equal(m.Transcript().Len(), 1) // from an abandoned turn
}

func TestMachine_InterruptionCancelsReply(t *testing.T) {
	is := is.New(t)

	cancelled := make(chan struct{})
	replier := &scriptedReplier{script: func(ctx context.Context, emit event.Emitter) {
		<-ctx.Done()
		close(cancelled)
	}}
	stt := sttfake.NewFakeEngine("tell me a story")
	m := newMachine(t, Config{STT: stt, Replier: replier})

	tickN(m, speech, 15)
	tickUntil(t, m, quiet, func() bool { return m.State() == Replying })
	restarts := stt.Restarts()

	// the user keeps talking before any reply audio plays
	tickN(m, speech, 9)
	is.Equal(m.State(), Replying)
	m.Tick(speech)
	is.Equal(m.State(), WaitingForSilence)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("reply was not cancelled")
	}
	is.Equal(stt.Restarts(), restarts+1)
	is.Equal(m.buf.Frames(), 5)
	is.Equal(m.Transcript().Len(), 1) // user message kept
}

func TestMachine_Reset(t *testing.T) {
	t.Run("cancels running reply", func(t *testing.T) {
		is := is.New(t)

		cancelled := make(chan struct{}, 2)
		replier := &scriptedReplier{script: func(ctx context.Context, emit event.Emitter) {
			<-ctx.Done()
			cancelled <- struct{}{}
		}}
		stt := sttfake.NewFakeEngine("tell me a story")
		m := newMachine(t, Config{STT: stt, Replier: replier})

		tickN(m, speech, 15)
		tickUntil(t, m, quiet, func() bool { return m.State() == Replying })
		restarts := stt.Restarts()

		m.Reset()
		is.Equal(m.State(), WaitingForSilence)
		is.Equal(m.buf.Frames(), 0)
		is.Equal(stt.Restarts(), restarts+1)

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("reply was not cancelled")
		}

		// the next turn starts from scratch
		tickN(m, speech, 15)
		tickUntil(t, m, quiet, func() bool { return replier.calls() == 2 })
	})

	t.Run("with wake engine", func(t *testing.T) {
		is := is.New(t)

		m := newMachine(t, Config{
			STT:     sttfake.NewFakeEngine(""),
			Replier: &scriptedReplier{},
			Wake:    wakefake.NewFakeWake(0),
			Effects: &fakeEffects{},
		})
		tickN(m, speech, 5)
		is.Equal(m.State(), WaitingForSilence)

		m.Reset()
		is.Equal(m.State(), WaitingForWakeup)
	})
}

func TestMachine_GoodbyeEndsConversation(t *testing.T) {
	tests := []struct {
		name     string
		wake     bool
		goodbye  bool
		wantNext State
	}{
		{"goodbye with wake engine", true, true, WaitingForWakeup},
		{"goodbye without wake engine", false, true, WaitingForSilence},
		{"plain reply", true, false, WaitingForSilence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			cfg := Config{
				STT:     sttfake.NewFakeEngine("bye now"),
				Replier: &scriptedReplier{script: replyWith("see you", tt.goodbye)},
			}
			if tt.wake {
				cfg.Wake = wakefake.NewFakeWake(0)
			}
			m := newMachine(t, cfg)
			if tt.wake {
				m.Tick(quiet)
			}

			tickN(m, speech, 15)
			key := "Replying_to_" + tt.wantNext.String()
			tickUntil(t, m, quiet, func() bool { return transitions(m, key) == 1 })
			is.Equal(m.State(), tt.wantNext)
		})
	}
}

func TestMachine_BufferStaysWithinCap(t *testing.T) {
	is := is.New(t)

	m := newMachine(t, Config{
		STT:                sttfake.NewFakeEngine(""),
		Replier:            &scriptedReplier{},
		Wake:               wakefake.NewFakeWake(),
		WakeBufferFrames:   20,
		ListenBufferFrames: 50,
	})

	tickN(m, quiet, 100)
	is.Equal(m.buf.Frames(), 20)

	m.cfg.Wake.(*wakefake.FakeWake).Trigger()
	m.Tick(quiet)
	is.Equal(m.State(), WaitingForSilence)
	tickN(m, quiet, 100)
	is.Equal(m.buf.Frames(), 50)
}

func TestMachine_WithReplyPipeline(t *testing.T) {
	is := is.New(t)

	synth := ttsfake.NewFakeTTS()
	synth.SampleRate = 24000
	open, opened := playback.MemoryOpener()
	pipeline := reply.NewPipeline(reply.Config{
		LLM: llmfake.NewFakeLLM("Sure thing, I can help. Anything else?"),
		NewEngine: func(ctx context.Context, emit event.Emitter) tts.Engine {
			return reply.NewSpeaker(ctx, reply.SpeakerConfig{Synth: synth, Open: open, Emit: emit})
		},
	})
	m := newMachine(t, Config{
		STT:        sttfake.NewFakeEngine("can you help me"),
		Replier:    pipeline,
		Transcript: NewTranscript("be brief"),
	})

	tickN(m, speech, 15)
	tickUntil(t, m, quiet, func() bool { return transitions(m, "Replying_to_WaitingForSilence") == 1 })

	msgs := m.Transcript().Messages()
	is.Equal(len(msgs), 3)
	is.Equal(msgs[1], llm.Message{Role: llm.RoleUser, Content: "can you help me"})
	is.Equal(msgs[2].Role, llm.RoleAssistant)
	is.True(strings.Contains(msgs[2].Content, "Anything else?"))

	sinks := opened()
	is.Equal(len(sinks), 1)
	is.True(len(sinks[0].Bytes()) > 0) // reply was played
	is.True(!sinks[0].Killed())        // and not cut short
}

// stalledSynth never produces audio and never closes its channel.
type stalledSynth struct{}

func (stalledSynth) Format() audio.Format { return audio.Mono16k }

func (stalledSynth) Synthesize(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func TestMachine_StalledReplyEndsWithErrorClip(t *testing.T) {
	stalledLLM := llmfake.NewFakeLLM("Hello there, my friend.")
	stalledLLM.StallAfter = 2
	fastTTS := ttsfake.NewFakeTTS()
	fastTTS.PerWord = time.Millisecond

	tests := []struct {
		name  string
		llm   llm.Client
		synth tts.Synthesizer
	}{
		{"language model stalls", stalledLLM, fastTTS},
		{"synthesis stalls", llmfake.NewFakeLLM("Hello there my friend."), stalledSynth{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			fx := &fakeEffects{}
			open, _ := playback.MemoryOpener()
			pipeline := reply.NewPipeline(reply.Config{
				LLM: llm.WithRetry(tt.llm, llm.RetryOptions{IdleTimeout: 30 * time.Millisecond}),
				NewEngine: func(ctx context.Context, emit event.Emitter) tts.Engine {
					return reply.NewSpeaker(ctx, reply.SpeakerConfig{
						Synth:            tt.synth,
						Open:             open,
						Emit:             emit,
						SynthesisTimeout: 30 * time.Millisecond,
					})
				},
				Effects: fx,
			})
			m := newMachine(t, Config{STT: sttfake.NewFakeEngine("say something"), Replier: pipeline})

			tickN(m, speech, 15)
			tickUntil(t, m, quiet, func() bool { return transitions(m, "Replying_to_WaitingForSilence") == 1 })

			is.Equal(fx.names(), []string{"error"}) // the user hears the failure
			is.Equal(m.State(), WaitingForSilence)
		})
	}
}

func TestMachine_RunReplaysFiniteSource(t *testing.T) {
	is := is.New(t)

	var samples []int16
	for i := 0; i < 10; i++ {
		samples = append(samples, quiet...)
	}
	for i := 0; i < 15; i++ {
		samples = append(samples, speech...)
	}

	replier := &scriptedReplier{script: replyWith("hi", false)}
	m := newMachine(t, Config{STT: sttfake.NewFakeEngine("hello"), Replier: replier})

	err := m.Run(context.Background(), audio.NewSliceSource(samples, false))
	is.NoErr(err)
	is.Equal(replier.calls(), 1) // turn answered after input ended
	is.Equal(m.Transcript().Len(), 2)
	is.Equal(m.State(), WaitingForSilence)
}
