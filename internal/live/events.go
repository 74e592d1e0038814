package live

import (
	"github.com/talupulahemanth/voiceassist/internal/audio"
	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

// Event is one inbound signal from the remote session: AudioChunk,
// TranscriptFragment, TurnComplete, Interrupted, Error or Closed.
type Event interface {
	eventType() string
}

// AudioChunk carries synthesized speech.
type AudioChunk struct {
	Chunk audio.Chunk
}

// TranscriptFragment is a piece of the user or model caption.
type TranscriptFragment struct {
	Role transcript.Role
	Text string
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// Interrupted reports that the user cut the model off.
type Interrupted struct{}

// Error reports a transport failure. A Closed event always follows.
type Error struct {
	Err error
}

// Closed is the last event of a session.
type Closed struct {
	Reason string
}

func (AudioChunk) eventType() string         { return "audio_chunk" }
func (TranscriptFragment) eventType() string { return "transcript_fragment" }
func (TurnComplete) eventType() string       { return "turn_complete" }
func (Interrupted) eventType() string        { return "interrupted" }
func (Error) eventType() string              { return "error" }
func (Closed) eventType() string             { return "closed" }

// Name returns the wire-independent name of an event, for logs.
func Name(ev Event) string {
	if ev == nil {
		return "none"
	}
	return ev.eventType()
}
