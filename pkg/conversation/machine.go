// Package conversation implements the turn-taking state machine that drives
// the agent: WaitingForWakeup → WaitingForSilence → StartReply → Replying.
// The machine is ticked once per captured frame and never blocks; speech
// recognition and replies run on goroutines and report back through an
// event channel that is drained on every tick.
package conversation

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/chriscow/voice-agent-go/pkg/ai/stt"
	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/event"
	"github.com/chriscow/voice-agent-go/pkg/interrupt"
	"github.com/chriscow/voice-agent-go/pkg/metrics"
	"github.com/chriscow/voice-agent-go/pkg/reply"
	"github.com/chriscow/voice-agent-go/pkg/voice"
	"github.com/google/uuid"
)

// State is the conversation state.
type State int32

const (
	WaitingForWakeup State = iota
	WaitingForSilence
	StartReply
	Replying
)

func (s State) String() string {
	switch s {
	case WaitingForWakeup:
		return "WaitingForWakeup"
	case WaitingForSilence:
		return "WaitingForSilence"
	case StartReply:
		return "StartReply"
	case Replying:
		return "Replying"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Replier generates and plays one reply to the conversation so far. It
// reports through emit and returns once playback is over or ctx is done.
// *reply.Pipeline is the production implementation.
type Replier interface {
	Run(ctx context.Context, messages []llm.Message, emit event.Emitter)
}

var _ Replier = (*reply.Pipeline)(nil)

// Sound effect names, matching the files of the effects bank.
const (
	DefaultWakeEffect    = "beep2"
	DefaultStandbyEffect = "byebye"
	DefaultErrorEffect   = "error"
)

// Buffer tails kept across transitions, in frames.
const (
	tailOnSpeech    = 4
	tailAfterFlush  = 1
	tailAfterReply  = 2
	tailOnInterrupt = 5
)

// Config configures a Machine. Thresholds are in frames; see
// audio.FramesIn.
type Config struct {
	Gate *voice.Gate
	// Wake is optional. Without it the machine never waits for a wake
	// phrase and never goes to standby.
	Wake    wake.Engine
	STT     stt.Engine
	Replier Replier
	Effects reply.EffectPlayer

	Transcript *Transcript

	// SilenceLimit frames of silence end the user's turn.
	SilenceLimit int
	// SpeakingMinimum frames of speech make a turn worth answering.
	SpeakingMinimum int
	// StandbyAfter frames of silence return to waiting for the wake phrase.
	StandbyAfter int
	// TranscribeEvery frames of buffered speech are flushed to STT.
	TranscribeEvery int
	// WakeBufferFrames and ListenBufferFrames cap the rolling buffer.
	WakeBufferFrames   int
	ListenBufferFrames int
	// EffectPauseFrames of interruption detection are skipped while a sound
	// effect plays during a reply.
	EffectPauseFrames int
	// FinalizeTimeout bounds the final transcription.
	FinalizeTimeout time.Duration

	WakeEffect    string
	StandbyEffect string
	ErrorEffect   string

	Interrupt interrupt.Config
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Gate == nil {
		c.Gate = voice.NewGate(voice.DefaultThreshold)
	}
	if c.Transcript == nil {
		c.Transcript = NewTranscript("")
	}
	if c.SilenceLimit <= 0 {
		c.SilenceLimit = audio.FramesIn(500 * time.Millisecond)
	}
	if c.SpeakingMinimum <= 0 {
		c.SpeakingMinimum = audio.FramesIn(300 * time.Millisecond)
	}
	if c.StandbyAfter <= 0 {
		c.StandbyAfter = audio.FramesIn(10 * time.Second)
	}
	if c.TranscribeEvery <= 0 {
		c.TranscribeEvery = audio.FramesIn(time.Second)
	}
	if c.WakeBufferFrames <= 0 {
		c.WakeBufferFrames = audio.FramesIn(20 * time.Second)
	}
	if c.ListenBufferFrames <= 0 {
		c.ListenBufferFrames = audio.FramesIn(60 * time.Second)
	}
	if c.EffectPauseFrames <= 0 {
		c.EffectPauseFrames = 32
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 10 * time.Second
	}
	if c.WakeEffect == "" {
		c.WakeEffect = DefaultWakeEffect
	}
	if c.StandbyEffect == "" {
		c.StandbyEffect = DefaultStandbyEffect
	}
	if c.ErrorEffect == "" {
		c.ErrorEffect = DefaultErrorEffect
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Interrupt.Logger == nil {
		c.Interrupt.Logger = c.Logger
	}
	return c
}

// Stats holds expvar counters for the machine.
type Stats struct {
	StateTransitions *expvar.Map
	Ticks            *expvar.Int
}

// Machine is the conversation state machine. Tick, Run and Close must be
// called from one goroutine; State and Stats may be read from any.
type Machine struct {
	cfg    Config
	logger *slog.Logger

	state atomic.Int32
	stats *Stats

	buf      *audio.RollingBuffer
	silence  int
	speaking int

	events chan event.Event
	turn   uint64

	detector    *interrupt.Detector
	replyCancel context.CancelFunc
	goodbye     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a machine. It starts in WaitingForWakeup when a wake engine is
// configured and in WaitingForSilence otherwise.
func New(cfg Config) (*Machine, error) {
	if cfg.STT == nil {
		return nil, fmt.Errorf("STT is required")
	}
	if cfg.Replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	cfg = cfg.withDefaults()

	m := &Machine{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "conversation")),
		stats:  newStats(),
		events: make(chan event.Event, 256),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	initial := WaitingForSilence
	if cfg.Wake != nil {
		initial = WaitingForWakeup
	}
	m.state.Store(int32(initial))
	m.buf = audio.NewRollingBuffer(m.bufferCap(initial))
	cfg.Metrics.SetState("", initial.String())
	return m, nil
}

func newStats() *Stats {
	transitions := &expvar.Map{}
	transitions.Init()
	return &Stats{StateTransitions: transitions, Ticks: &expvar.Int{}}
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Stats returns the machine's expvar counters.
func (m *Machine) Stats() *Stats {
	return m.stats
}

// Transcript returns the conversation history.
func (m *Machine) Transcript() *Transcript {
	return m.cfg.Transcript
}

func (m *Machine) setState(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev == next {
		return
	}

	key := fmt.Sprintf("%s_to_%s", prev, next)
	if counter := m.stats.StateTransitions.Get(key); counter != nil {
		counter.(*expvar.Int).Add(1)
	} else {
		c := &expvar.Int{}
		c.Set(1)
		m.stats.StateTransitions.Set(key, c)
	}

	m.buf.SetCapacity(m.bufferCap(next))
	m.cfg.Metrics.SetState(prev.String(), next.String())
	m.logger.Debug("State changed", slog.String("from", prev.String()), slog.String("to", next.String()))
}

func (m *Machine) bufferCap(s State) int {
	if s == WaitingForWakeup {
		return m.cfg.WakeBufferFrames
	}
	return m.cfg.ListenBufferFrames
}

// Tick advances the machine by one captured frame.
func (m *Machine) Tick(frame audio.Frame) {
	m.stats.Ticks.Add(1)
	m.buf.Append(frame)
	m.drain()

	silent := m.cfg.Gate.IsSilence(frame)
	switch m.State() {
	case WaitingForWakeup:
		m.waitForWakeup(frame)
	case WaitingForSilence:
		m.waitForSilence(silent)
	case StartReply:
		// waiting for the UserMessage event
	case Replying:
		m.replying(frame, silent)
	}
}

func (m *Machine) drain() {
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		default:
			return
		}
	}
}

func (m *Machine) handle(ev event.Event) {
	if ev.TurnID != m.turn {
		m.logger.Debug("Dropping stale event", slog.String("kind", ev.Kind.String()))
		return
	}

	switch ev.Kind {
	case event.UserMessage:
		if m.State() == StartReply {
			m.userMessage(ev)
		}
	case event.AssistantMessage:
		if m.cfg.Transcript.Append(ev.MessageID, llm.RoleAssistant, ev.Text) {
			m.goodbye = ev.Goodbye
		}
	case event.ReplyAudioStarted:
		if m.State() == Replying {
			m.resetCounters()
			m.detector.StartReplyInterruptionCheck(ev.Handle)
		}
	case event.ReplyAudio:
		if m.State() == Replying {
			m.detector.AddReplyAudio(ev.Samples, ev.Final)
		}
	case event.PlayBeep:
		if m.State() == Replying {
			m.detector.PauseFor(m.cfg.EffectPauseFrames)
			m.play(ev.Effect)
		}
	case event.ReplyAudioEnded:
		if m.State() == Replying {
			m.detector.Finish()
		}
	}
}

func (m *Machine) waitForWakeup(frame audio.Frame) {
	keyword, detected, err := m.cfg.Wake.Process(frame)
	if err != nil {
		m.logger.Warn("Wake word engine failed", slog.String("error", err.Error()))
		return
	}
	if !detected {
		return
	}

	m.logger.Info("Wake word detected", slog.Int("keyword", keyword))
	m.cfg.Metrics.RecordWakeWord()
	m.play(m.cfg.WakeEffect)
	m.cfg.STT.Restart()
	m.resetCounters()
	m.buf.Reset()
	m.setState(WaitingForSilence)
}

func (m *Machine) waitForSilence(silent bool) {
	if silent {
		m.silence++
		// a short noise followed by a long pause is not the start of a turn
		if m.speaking > 0 && m.speaking < m.cfg.SpeakingMinimum && m.silence >= 2*m.cfg.SilenceLimit {
			m.logger.Debug("Discarding short sound", slog.Int("frames", m.speaking))
			m.speaking = 0
			m.cfg.STT.Restart()
		}
	} else {
		if m.speaking == 0 {
			m.buf.KeepTail(tailOnSpeech)
		}
		m.speaking++
		m.silence = 0
	}

	if m.speaking > 0 && m.buf.Frames() >= m.cfg.TranscribeEvery {
		m.cfg.STT.Consume(m.buf.Bytes())
		m.buf.KeepTail(tailAfterFlush)
	}

	switch {
	case m.silence >= m.cfg.SilenceLimit && m.speaking >= m.cfg.SpeakingMinimum:
		m.startReply()
	case m.cfg.Wake != nil && m.silence >= m.cfg.StandbyAfter:
		m.logger.Info("No speech, going to standby")
		m.cfg.Metrics.RecordStandby()
		m.play(m.cfg.StandbyEffect)
		m.cfg.STT.Stop()
		m.resetCounters()
		m.setState(WaitingForWakeup)
	}
}

// startReply hands the rest of the turn to STT and waits, off the loop, for
// the final transcription.
func (m *Machine) startReply() {
	m.logger.Info("User finished speaking", slog.Int("speech_frames", m.speaking))
	m.cfg.STT.Consume(m.buf.Bytes())
	m.turn++
	emit := event.ChannelEmitter(m.ctx, m.events, m.turn)
	m.setState(StartReply)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.FinalizeTimeout)
		defer cancel()
		text, err := m.cfg.STT.TranscribeAndStop(ctx)
		emit(event.Event{Kind: event.UserMessage, Text: text, Err: err})
	}()
}

func (m *Machine) userMessage(ev event.Event) {
	text := strings.TrimSpace(ev.Text)
	if ev.Err != nil && !errors.Is(ev.Err, ai.ErrEmptyTranscription) {
		m.logger.Error("Transcription failed", slog.String("error", ev.Err.Error()))
		m.cfg.Metrics.RecordBailOut("stt_error")
		m.play(m.cfg.ErrorEffect)
		m.listen()
		return
	}
	if text == "" {
		m.logger.Info("Nothing transcribed, listening again")
		m.cfg.Metrics.RecordBailOut("empty")
		m.listen()
		return
	}

	m.logger.Info("User said", slog.String("text", text))
	m.cfg.Transcript.Append(uuid.NewString(), llm.RoleUser, text)
	m.buf.KeepTail(tailAfterFlush)
	m.resetCounters()
	m.startReplying()
}

func (m *Machine) startReplying() {
	m.turn++
	ctx, cancel := context.WithCancel(m.ctx)
	m.replyCancel = cancel
	m.goodbye = false
	m.detector = interrupt.New(m.cfg.Interrupt)
	emit := event.ChannelEmitter(ctx, m.events, m.turn)
	messages := m.cfg.Transcript.Messages()
	m.setState(Replying)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cfg.Replier.Run(ctx, messages, emit)
	}()
}

func (m *Machine) replying(frame audio.Frame, silent bool) {
	if m.detector.IsDone() && !m.detector.Interrupted() {
		m.finishReply()
		return
	}

	if m.detector.CheckForInterruption(frame, silent) {
		m.logger.Info("Reply interrupted")
		m.cfg.Metrics.RecordInterruption()
		m.cancelReply()
		m.buf.KeepTail(tailOnInterrupt)
		m.resetCounters()
		m.cfg.STT.Restart()
		m.setState(WaitingForSilence)
	}
}

func (m *Machine) finishReply() {
	m.cfg.Metrics.RecordTurn()
	if m.replyCancel != nil {
		m.replyCancel()
		m.replyCancel = nil
	}
	m.buf.KeepTail(tailAfterReply)
	m.resetCounters()
	m.cfg.STT.Restart()

	if m.goodbye && m.cfg.Wake != nil {
		m.logger.Info("Conversation ended, waiting for wake word")
		m.setState(WaitingForWakeup)
		return
	}
	m.setState(WaitingForSilence)
}

// cancelReply abandons the running reply. Its late events no longer match
// the turn and are dropped.
func (m *Machine) cancelReply() {
	if m.replyCancel != nil {
		m.replyCancel()
		m.replyCancel = nil
	}
	if m.detector != nil {
		m.detector.Stop()
	}
	m.turn++
}

// Reset abandons any reply in progress and returns to the idle state,
// WaitingForWakeup when a wake engine is configured. Call it between runs,
// never concurrently with Tick.
func (m *Machine) Reset() {
	if s := m.State(); s == StartReply || s == Replying {
		m.cancelReply()
	}
	m.drain()
	m.buf.Reset()
	m.resetCounters()
	m.goodbye = false
	m.cfg.STT.Restart()

	if m.cfg.Wake != nil {
		m.setState(WaitingForWakeup)
		return
	}
	m.setState(WaitingForSilence)
}

// listen returns to WaitingForSilence after an abandoned turn.
func (m *Machine) listen() {
	m.resetCounters()
	m.cfg.STT.Restart()
	m.setState(WaitingForSilence)
}

func (m *Machine) resetCounters() {
	m.silence = 0
	m.speaking = 0
}

func (m *Machine) play(name string) {
	if m.cfg.Effects == nil || name == "" {
		return
	}
	m.cfg.Effects.Play(name)
}

// Run ticks the machine with frames from src until ctx is done or src is
// exhausted. After the last frame of a finite source it keeps ticking
// silence until a pending turn has been answered.
func (m *Machine) Run(ctx context.Context, src audio.FrameSource) error {
	if err := src.Start(); err != nil {
		return fmt.Errorf("start frame source: %w", err)
	}
	defer src.Stop()

	for {
		frame, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return m.settle(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		m.Tick(frame)
	}
}

func (m *Machine) settle(ctx context.Context) error {
	silence := make(audio.Frame, audio.FrameLength)
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for i := 0; i < m.cfg.ListenBufferFrames; i++ {
		m.Tick(silence)
		if s := m.State(); s != StartReply && s != Replying && m.speaking == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
	return fmt.Errorf("reply did not finish after input ended")
}

// Close cancels background work and waits for it to stop.
func (m *Machine) Close() error {
	m.cancel()
	if m.detector != nil && !m.detector.IsDone() {
		m.detector.Stop()
	}
	m.cfg.STT.Stop()
	m.wg.Wait()
	return nil
}
