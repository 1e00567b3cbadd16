// Package event carries messages from background reply work back to the
// conversation loop.
package event

import (
	"context"
	"fmt"

	"github.com/chriscow/voice-agent-go/pkg/playback"
)

// Kind tags an Event.
type Kind int

const (
	// UserMessage carries a finished transcription (Text) or its failure (Err).
	UserMessage Kind = iota
	// AssistantMessage carries the full reply text once generation completed.
	AssistantMessage
	// ReplyAudioStarted carries the playback Handle of the reply.
	ReplyAudioStarted
	// ReplyAudio carries reply audio as it is played, as 16 kHz mono Samples.
	// Final marks the last piece.
	ReplyAudio
	// ReplyAudioEnded is sent once playback of the reply has finished.
	ReplyAudioEnded
	// PlayBeep asks the loop to play Effect outside the reply audio.
	PlayBeep
)

func (k Kind) String() string {
	switch k {
	case UserMessage:
		return "user_message"
	case AssistantMessage:
		return "assistant_message"
	case ReplyAudioStarted:
		return "reply_audio_started"
	case ReplyAudio:
		return "reply_audio"
	case ReplyAudioEnded:
		return "reply_audio_ended"
	case PlayBeep:
		return "play_beep"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Event is one message on the reply channel. TurnID ties it to the turn that
// produced it so the loop can ignore events from abandoned turns.
type Event struct {
	Kind   Kind
	TurnID uint64

	Text      string
	MessageID string
	Goodbye   bool
	Err       error

	Samples []int16
	Final   bool

	Handle playback.Handle
	Effect string
}

// Emitter delivers events to the conversation loop.
type Emitter func(Event)

// ChannelEmitter stamps events with turn and sends them on ch. Sends give up
// when ctx ends, since nobody is listening for that turn any more.
func ChannelEmitter(ctx context.Context, ch chan<- Event, turn uint64) Emitter {
	return func(ev Event) {
		ev.TurnID = turn
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
}
