package session

import (
	"fmt"

	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

// State is the UI-facing session state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateSpeaking:
		return "speaking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is everything the UI renders.
type Snapshot struct {
	State     State              `json:"state"`
	SessionID string             `json:"session_id,omitempty"`
	Loudness  float64            `json:"loudness"`
	Captions  bool               `json:"captions"`
	Voice     string             `json:"voice"`
	Language  string             `json:"language"`
	Pending   transcript.Pending `json:"pending"`
	Entries   []transcript.Entry `json:"entries"`
	Error     string             `json:"error,omitempty"`
}
