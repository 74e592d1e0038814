package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// Source is one scheduled unit of output audio. It is owned by the
// scheduler from creation until it ends.
type Source struct {
	ID    uuid.UUID
	Frame audio.Frame
	Start time.Duration

	ended func(*Source)
	once  sync.Once
}

// Duration returns the playback length of the source.
func (s *Source) Duration() time.Duration {
	return s.Frame.Duration()
}

// End returns the output clock time at which the source finishes.
func (s *Source) End() time.Duration {
	return s.Start + s.Duration()
}

// Ended signals that the source finished or was stopped. Only the first
// call has an effect.
func (s *Source) Ended() {
	s.once.Do(func() {
		if s.ended != nil {
			s.ended(s)
		}
	})
}
