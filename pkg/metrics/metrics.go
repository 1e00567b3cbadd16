// Package metrics exposes Prometheus collectors for the conversation loop.
// All Record methods are safe to call on a nil *Metrics, so components can
// run without metrics wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the voice agent
type Metrics struct {
	// Conversation
	Turns         prometheus.Counter
	Interruptions prometheus.Counter
	BailOuts      *prometheus.CounterVec
	WakeWords     prometheus.Counter
	Standbys      prometheus.Counter
	State         *prometheus.GaugeVec

	// Reply
	LLMRetries     prometheus.Counter
	ReplyFailures  prometheus.Counter
	FirstAudio     prometheus.Histogram
	UtterancesSent prometheus.Counter

	// Transcription
	TranscriptionDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Turns: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_turns_total",
			Help: "Total number of replies that played to the end",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_interruptions_total",
			Help: "Total number of replies cut short by the user",
		}),
		BailOuts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "va_bailouts_total",
			Help: "Total number of turns abandoned before a reply",
		}, []string{"reason"}),
		WakeWords: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_wake_words_total",
			Help: "Total number of wake phrase detections",
		}),
		Standbys: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_standbys_total",
			Help: "Total number of returns to waiting for the wake phrase",
		}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "va_state",
			Help: "1 for the current conversation state, 0 otherwise",
		}, []string{"state"}),

		LLMRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_llm_retries_total",
			Help: "Total number of retried language model requests",
		}),
		ReplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_reply_failures_total",
			Help: "Total number of replies replaced by the error sound",
		}),
		FirstAudio: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "va_first_audio_seconds",
			Help:    "Delay from request to the first reply audio",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~13s
		}),
		UtterancesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "va_utterances_total",
			Help: "Total number of reply utterances sent to synthesis",
		}),

		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "va_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
	}
}

// RecordTurn counts a reply that played to the end
func (m *Metrics) RecordTurn() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}

// RecordInterruption counts a reply cut short
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordBailOut counts an abandoned turn
func (m *Metrics) RecordBailOut(reason string) {
	if m == nil {
		return
	}
	m.BailOuts.WithLabelValues(reason).Inc()
}

// RecordWakeWord counts a wake phrase detection
func (m *Metrics) RecordWakeWord() {
	if m == nil {
		return
	}
	m.WakeWords.Inc()
}

// RecordStandby counts a return to waiting for the wake phrase
func (m *Metrics) RecordStandby() {
	if m == nil {
		return
	}
	m.Standbys.Inc()
}

// SetState marks state as current and clears previous
func (m *Metrics) SetState(previous, state string) {
	if m == nil {
		return
	}
	if previous != "" {
		m.State.WithLabelValues(previous).Set(0)
	}
	m.State.WithLabelValues(state).Set(1)
}

// RecordLLMRetry counts a retried language model request
func (m *Metrics) RecordLLMRetry() {
	if m == nil {
		return
	}
	m.LLMRetries.Inc()
}

// RecordReplyFailure counts a reply replaced by the error sound
func (m *Metrics) RecordReplyFailure() {
	if m == nil {
		return
	}
	m.ReplyFailures.Inc()
}

// ObserveFirstAudio records the delay until reply audio started
func (m *Metrics) ObserveFirstAudio(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudio.Observe(d.Seconds())
}

// RecordUtterance counts an utterance sent to synthesis
func (m *Metrics) RecordUtterance() {
	if m == nil {
		return
	}
	m.UtterancesSent.Inc()
}

// ObserveTranscription records the duration of a transcription request
func (m *Metrics) ObserveTranscription(d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(d.Seconds())
}
