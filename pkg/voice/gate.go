// Package voice classifies microphone frames as speech or silence.
package voice

import (
	"math"
	"sync/atomic"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// DefaultThreshold is the RMS level below which a frame counts as silence.
const DefaultThreshold = 300

// Activity is the result of classifying one frame.
type Activity int

const (
	Silence Activity = iota
	Speech
)

func (a Activity) String() string {
	if a == Speech {
		return "speech"
	}
	return "silence"
}

// Gate compares frame volume against a threshold. The threshold can be changed
// while frames are being classified, e.g. from a calibration command.
type Gate struct {
	threshold atomic.Uint64 // float64 bits
}

// NewGate creates a gate. A non-positive threshold selects DefaultThreshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold replaces the RMS threshold.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	g.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current RMS threshold.
func (g *Gate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// Classify returns Speech when the frame's RMS reaches the threshold.
func (g *Gate) Classify(f audio.Frame) Activity {
	if audio.RMS(f) >= g.Threshold() {
		return Speech
	}
	return Silence
}

// IsSilence is shorthand for Classify(f) == Silence.
func (g *Gate) IsSilence(f audio.Frame) bool {
	return g.Classify(f) == Silence
}
