package interrupt

import (
	"math"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// sample pairs one microphone frame with the reply audio believed to be
// playing at the same moment, by two alignment estimates.
type sample struct {
	mic        []int16
	guessed    []int16
	afterSound []int16
}

// analyser decides, batch by batch, whether the user is talking over the
// reply. It is pure and is fed from a single goroutine.
type analyser struct {
	cfg Config

	batch        []sample
	batchSize    int
	similarities []float64
	feedback     bool

	stopCounts int
	sinceStop  int
}

func newAnalyser(cfg Config) *analyser {
	return &analyser{cfg: cfg, batchSize: cfg.BatchFrames}
}

// add consumes one sample and reports whether the reply should be stopped.
func (a *analyser) add(s sample) bool {
	a.batch = append(a.batch, s)
	if len(a.batch) < a.batchSize {
		return false
	}
	batch := a.batch
	a.batch = nil

	var mic []int16
	for _, s := range batch {
		mic = append(mic, s.mic...)
	}

	if len(a.similarities) < a.cfg.CalibrationBatches {
		var reply []int16
		for _, s := range batch {
			reply = append(reply, s.guessed...)
		}
		if len(reply) < len(mic) {
			mic = mic[:len(reply)]
		}
		a.similarities = append(a.similarities, audio.Similarity(mic, reply))

		if len(a.similarities) == a.cfg.CalibrationBatches {
			if mean(a.similarities) > a.cfg.SimilarityThreshold {
				a.feedback = true
				a.batchSize = a.cfg.FeedbackBatchFrames
			}
		}
		return false
	}

	a.sinceStop++
	if a.sinceStop == a.cfg.DecayBatches {
		a.stopCounts = max(a.stopCounts-1, 0)
		a.sinceStop = 0
	}

	micVolume := audio.RMS(mic)
	if a.feedback {
		var reply []int16
		for _, s := range batch {
			reply = append(reply, s.afterSound...)
		}
		if logVolume(micVolume)-logVolume(audio.RMS(reply)) > a.cfg.LogVolumeMargin {
			a.trigger()
		}
	} else if micVolume >= a.cfg.VolumeThreshold {
		a.trigger()
	}

	return a.stopCounts >= a.cfg.StopCount
}

func (a *analyser) trigger() {
	a.stopCounts++
	a.sinceStop = 0
}

// logVolume treats silence as volume 1 so that log stays finite.
func logVolume(v float64) float64 {
	if v == 0 {
		return 0
	}
	return math.Log(v)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
