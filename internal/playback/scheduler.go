package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// ErrClosed is returned when audio arrives after the scheduler was stopped.
var ErrClosed = errors.New("playback: scheduler closed")

// Output is a device that plays sources at absolute times on its own
// monotonic clock.
type Output interface {
	// Now returns the current output clock time.
	Now() time.Duration
	SampleRate() int
	Channels() int
	// Play queues src to begin at src.Start. Implementations call
	// src.Ended once playback finishes, never from within Play.
	Play(src *Source) error
	// Stop discards src and signals its end.
	Stop(src *Source)
}

// SchedulerConfig describes the inbound audio contract.
type SchedulerConfig struct {
	// SampleRate is used for chunks that carry no rate. Defaults to 24 kHz.
	SampleRate int
	// Channels of inbound audio. Defaults to mono.
	Channels int
	// OnIdle is called when the last active source ends on its own.
	OnIdle func()
	Logger *slog.Logger
}

// Scheduler places inbound audio back to back on the output clock.
type Scheduler struct {
	config SchedulerConfig
	out    Output
	logger *slog.Logger

	mu sync.Mutex
	// cursor is the next free position in output frames.
	cursor int64
	active map[*Source]struct{}
	closed bool
}

// NewScheduler creates a scheduler bound to out.
func NewScheduler(out Output, config SchedulerConfig) *Scheduler {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.OutputSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config: config,
		out:    out,
		logger: logger,
		active: make(map[*Source]struct{}),
	}
}

// Enqueue decodes a chunk and schedules it right after the previous one.
// Malformed chunks return a *audio.DecodeError or *audio.FormatError and
// leave the schedule untouched.
func (s *Scheduler) Enqueue(chunk audio.Chunk) (*Source, error) {
	if chunk.SampleRate <= 0 {
		chunk.SampleRate = s.config.SampleRate
	}
	frame, err := audio.DecodeChunk(chunk, s.config.Channels)
	if err != nil {
		return nil, err
	}
	return s.Schedule(frame)
}

// Schedule converts frame to the output format and queues it at
// max(cursor, now).
func (s *Scheduler) Schedule(frame audio.Frame) (*Source, error) {
	frame = audio.Convert(frame, s.out.SampleRate(), s.out.Channels())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	rate := int64(s.out.SampleRate())
	start := s.cursor
	if now := durationToFrames(s.out.Now(), rate); now > start {
		start = now
	}

	src := &Source{
		ID:    uuid.New(),
		Frame: frame,
		Start: framesToDuration(start, rate),
		ended: s.handleEnded,
	}

	s.active[src] = struct{}{}
	if err := s.out.Play(src); err != nil {
		delete(s.active, src)
		return nil, err
	}
	s.cursor = start + int64(frame.Len())

	s.logger.Debug("Scheduled playback source",
		slog.String("source_id", src.ID.String()),
		slog.Duration("start", src.Start),
		slog.Duration("duration", src.Duration()),
		slog.Int("active", len(s.active)),
	)

	return src, nil
}

func (s *Scheduler) handleEnded(src *Source) {
	s.mu.Lock()
	if _, ok := s.active[src]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, src)
	idle := len(s.active) == 0
	s.mu.Unlock()

	if idle && s.config.OnIdle != nil {
		s.config.OnIdle()
	}
}

// Interrupt stops every active source and resets the cursor so the next
// chunk starts at the current output time. It returns the number of
// sources discarded.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	sources := s.drainLocked()
	s.cursor = 0
	s.mu.Unlock()

	for _, src := range sources {
		s.out.Stop(src)
	}
	return len(sources)
}

// Stop discards all playback and rejects further audio.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	sources := s.drainLocked()
	s.cursor = 0
	s.mu.Unlock()

	for _, src := range sources {
		s.out.Stop(src)
	}
}

func (s *Scheduler) drainLocked() []*Source {
	sources := make([]*Source, 0, len(s.active))
	for src := range s.active {
		sources = append(sources, src)
	}
	clear(s.active)
	return sources
}

// Speaking reports whether any source is still scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Active returns the number of unfinished sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the earliest start time for the next source.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return framesToDuration(s.cursor, int64(s.out.SampleRate()))
}

func framesToDuration(frames, rate int64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / rate)
}

// durationToFrames rounds to the nearest frame, which inverts
// framesToDuration exactly.
func durationToFrames(d time.Duration, rate int64) int64 {
	return (int64(d)*rate + int64(time.Second)/2) / int64(time.Second)
}
