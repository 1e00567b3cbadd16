// Package interrupt detects the user talking over a reply. Speakers close to
// the microphone feed the reply back into it, so loudness alone is not
// enough: the detector first checks whether the microphone is hearing the
// reply and, if it is, looks for the microphone being much louder than the
// reply audio that should be playing at that moment.
package interrupt

import (
	"log/slog"

	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/playback"
)

// Config holds the calibration constants. Counts are in frames unless noted.
type Config struct {
	// PlaybackLatencyFrames is how far reply audio lags behind the moment
	// playback is reported as started.
	PlaybackLatencyFrames int
	// BatchFrames is the analysis batch size before feedback is known.
	BatchFrames int
	// CalibrationBatches are compared to decide whether there is feedback.
	CalibrationBatches int
	// SimilarityThreshold is the mean similarity that means feedback.
	SimilarityThreshold float64
	// FeedbackBatchFrames is the batch size once feedback was found.
	FeedbackBatchFrames int
	// LogVolumeMargin is the natural-log volume difference that counts as
	// the user talking over feedback.
	LogVolumeMargin float64
	// VolumeThreshold is the RMS that counts as the user talking when there
	// is no feedback; also used to find where reply audio becomes audible.
	VolumeThreshold float64
	// DecayBatches without a trigger forgive one earlier trigger.
	DecayBatches int
	// StopCount triggers are needed to interrupt.
	StopCount int
	// GraceFrames at the end of the reply are never analysed. Negative
	// disables the grace window.
	GraceFrames int
	// PrePlaybackFrames of continuous speech before playback starts
	// interrupt the reply.
	PrePlaybackFrames int
	Logger            *slog.Logger
}

// DefaultConfig returns the constants tuned for laptop speakers and mic.
func DefaultConfig() Config {
	return Config{
		PlaybackLatencyFrames: 28,
		BatchFrames:           16,
		CalibrationBatches:    5,
		SimilarityThreshold:   0.95,
		FeedbackBatchFrames:   4,
		LogVolumeMargin:       3.5,
		VolumeThreshold:       300,
		DecayBatches:          8,
		StopCount:             2,
		GraceFrames:           8,
		PrePlaybackFrames:     10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PlaybackLatencyFrames <= 0 {
		c.PlaybackLatencyFrames = d.PlaybackLatencyFrames
	}
	if c.BatchFrames <= 0 {
		c.BatchFrames = d.BatchFrames
	}
	if c.CalibrationBatches <= 0 {
		c.CalibrationBatches = d.CalibrationBatches
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.FeedbackBatchFrames <= 0 {
		c.FeedbackBatchFrames = d.FeedbackBatchFrames
	}
	if c.LogVolumeMargin <= 0 {
		c.LogVolumeMargin = d.LogVolumeMargin
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.DecayBatches <= 0 {
		c.DecayBatches = d.DecayBatches
	}
	if c.StopCount <= 0 {
		c.StopCount = d.StopCount
	}
	if c.GraceFrames == 0 {
		c.GraceFrames = d.GraceFrames
	} else if c.GraceFrames < 0 {
		c.GraceFrames = 0
	}
	if c.PrePlaybackFrames <= 0 {
		c.PrePlaybackFrames = d.PrePlaybackFrames
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Detector watches one reply. All methods are called from the conversation
// loop; batch analysis runs on a separate goroutine.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	handle   playback.Handle
	started  bool
	reply    []int16
	complete bool

	// cursor is the reply sample believed to be playing now; negative while
	// playback latency is being skipped.
	cursor int
	// soundCursor re-aligns on the first audible mic frame, skipping the
	// reply's leading silence. -1 until then.
	soundCursor int

	preSpeech   int
	pauseFrames int
	interrupted bool
	done        bool

	in      chan sample
	verdict chan struct{}
	quit    chan struct{}
	checks  int
}

// New creates a detector in the pre-playback phase.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:         cfg,
		logger:      cfg.Logger.With(slog.String("component", "interrupt")),
		cursor:      -cfg.PlaybackLatencyFrames * audio.FrameLength,
		soundCursor: -1,
	}
}

// StartReplyInterruptionCheck begins the playback phase; h is killed when
// the user interrupts.
func (d *Detector) StartReplyInterruptionCheck(h playback.Handle) {
	if d.started || d.done {
		return
	}
	d.started = true
	d.handle = h
	d.in = make(chan sample, 256)
	d.verdict = make(chan struct{})
	d.quit = make(chan struct{})
	go d.analyse(newAnalyser(d.cfg), d.in, d.verdict, d.quit)
}

func (d *Detector) analyse(a *analyser, in <-chan sample, verdict, quit chan struct{}) {
	for {
		select {
		case s := <-in:
			if a.add(s) {
				close(verdict)
				return
			}
		case <-quit:
			return
		}
	}
}

// AddReplyAudio appends reply audio, at capture rate, as it is played.
// final marks that no more will follow.
func (d *Detector) AddReplyAudio(samples []int16, final bool) {
	d.reply = append(d.reply, samples...)
	if final {
		d.complete = true
	}
}

// PauseFor suppresses detection for the next n frames, e.g. while a sound
// effect plays.
func (d *Detector) PauseFor(frames int) {
	d.pauseFrames = frames
}

// Finish marks the end of reply playback.
func (d *Detector) Finish() {
	d.stop(false)
}

// Stop ends detection and kills playback.
func (d *Detector) Stop() {
	d.stop(true)
}

func (d *Detector) stop(kill bool) {
	if d.quit != nil && !d.done {
		close(d.quit)
	}
	d.done = true
	if kill && d.handle != nil {
		if err := d.handle.Kill(); err != nil {
			d.logger.Warn("Kill playback", slog.String("error", err.Error()))
		}
	}
}

// IsDone reports whether the reply is over, finished or interrupted.
func (d *Detector) IsDone() bool {
	return d.done
}

// Interrupted reports whether CheckForInterruption has fired.
func (d *Detector) Interrupted() bool {
	return d.interrupted
}

// CheckForInterruption inspects one microphone frame. It returns true exactly
// once, on the frame where the interruption is recognised, and kills
// playback when it does.
func (d *Detector) CheckForInterruption(frame audio.Frame, isSilence bool) bool {
	if d.done {
		return false
	}

	if d.pauseFrames > 0 {
		d.pauseFrames--
		d.preSpeech = 0
		if d.started && len(d.reply) > 0 {
			d.advance()
		}
		return false
	}

	if !d.started {
		if isSilence {
			d.preSpeech = 0
			return false
		}
		d.preSpeech++
		if d.preSpeech >= d.cfg.PrePlaybackFrames {
			d.logger.Info("User kept talking before the reply started")
			return d.fire()
		}
		return false
	}

	// A verdict reached while the tail of a finished reply plays is dropped.
	if d.inGrace(d.cursor + audio.FrameLength) {
		d.advance()
		return false
	}

	select {
	case <-d.verdict:
		d.logger.Info("User talked over the reply", slog.Int("checks", d.checks))
		return d.fire()
	default:
	}

	if len(d.reply) == 0 {
		return false
	}
	d.checks++

	if d.soundCursor == -1 && !isSilence {
		d.soundCursor = audio.FrameLength
		for i := 0; i < len(d.reply); i += audio.FrameLength {
			if audio.RMS(d.reply[i:min(i+audio.FrameLength, len(d.reply))]) >= d.cfg.VolumeThreshold {
				break
			}
			d.soundCursor += audio.FrameLength
		}
	}
	d.advance()

	if d.cursor < 0 || d.cursor >= len(d.reply) {
		return false
	}
	if d.inGrace(d.cursor) {
		return false
	}

	s := sample{
		mic:        frame,
		guessed:    d.slice(d.cursor),
		afterSound: d.slice(d.soundCursor),
	}
	select {
	case d.in <- s:
	default:
		d.logger.Debug("Analyser busy, dropping frame")
	}
	return false
}

func (d *Detector) inGrace(cursor int) bool {
	if !d.complete || d.cfg.GraceFrames == 0 || len(d.reply) == 0 {
		return false
	}
	return cursor >= len(d.reply)-d.cfg.GraceFrames*audio.FrameLength
}

func (d *Detector) advance() {
	d.cursor += audio.FrameLength
	if d.soundCursor > -1 {
		d.soundCursor += audio.FrameLength
	}
}

func (d *Detector) slice(from int) []int16 {
	if from < 0 || from >= len(d.reply) {
		return nil
	}
	return d.reply[from:min(from+audio.FrameLength, len(d.reply))]
}

func (d *Detector) fire() bool {
	d.interrupted = true
	d.stop(true)
	return true
}
