// Package audio provides the PCM primitives shared by the voice pipeline:
// fixed-size frames, volume measurement, the rolling capture buffer and a few
// small signal helpers.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// SampleRate is the capture rate for every microphone frame.
	SampleRate = 16000
	// FrameLength is the number of samples in one Frame.
	FrameLength = 512
	// FrameBytes is the size of one Frame as 16-bit little-endian PCM.
	FrameBytes = FrameLength * 2
)

// FrameDuration is the wall-clock span of one Frame (32 ms).
const FrameDuration = time.Second * FrameLength / SampleRate

// Frame is one block of 16 kHz mono signed 16-bit PCM. Frames are the unit of
// time for every counter in the conversation; they are not modified after
// capture.
type Frame []int16

// NewFrame decodes little-endian PCM into a Frame.
// Returns an error if data does not hold exactly FrameLength samples.
func NewFrame(data []byte) (Frame, error) {
	if len(data) != FrameBytes {
		return nil, fmt.Errorf("frame data length mismatch: got %d bytes, expected %d", len(data), FrameBytes)
	}
	return Frame(DecodePCM(data)), nil
}

// Bytes encodes the frame as little-endian PCM.
func (f Frame) Bytes() []byte {
	return EncodePCM(f)
}

// Clone creates a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Duration returns how long the frame lasts at SampleRate.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f)) * time.Second / SampleRate
}

// FramesIn converts a duration to a frame count, rounding up so that a
// threshold is never shorter than asked for.
func FramesIn(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(FrameDuration)))
}

// EncodePCM converts samples to little-endian bytes.
func EncodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM converts little-endian bytes to samples. A trailing odd byte is ignored.
func DecodePCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Format describes a raw PCM stream produced by a synthesizer.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono16k is the capture format.
var Mono16k = Format{SampleRate: SampleRate, Channels: 1}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

func (f Format) String() string {
	return fmt.Sprintf("s16le/%dHz/%dch", f.SampleRate, f.Channels)
}
