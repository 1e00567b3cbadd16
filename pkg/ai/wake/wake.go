// Package wake defines the wake-phrase detector contract.
package wake

import "github.com/chriscow/voice-agent-go/pkg/audio"

// Engine scans capture frames for a wake phrase. Process is called once per
// frame from the conversation loop and must return quickly.
type Engine interface {
	// Process reports whether a keyword ended in this frame, and which one.
	Process(frame audio.Frame) (keyword int, detected bool, err error)
	Close() error
}
