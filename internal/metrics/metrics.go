package metrics

import (
	"fmt"
	"sync"
	"time"
)

// SessionMetrics accumulates per-session counters for the end-of-session
// summary log.
type SessionMetrics struct {
	SessionID      string
	Voice          string
	Language       string
	StartTime      time.Time
	EndTime        time.Time
	ChunksSent     int
	ChunksDropped  int
	ChunksReceived int
	AudioReceived  time.Duration
	Turns          int
	Interruptions  int
	FirstAudioTime *time.Time
	mu             sync.Mutex
}

func NewSessionMetrics(sessionID, voice, language string) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		Voice:     voice,
		Language:  language,
		StartTime: time.Now(),
	}
}

func (m *SessionMetrics) AddSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksSent++
}

func (m *SessionMetrics) AddDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksDropped++
}

// AddReceived records one inbound audio chunk of the given length.
func (m *SessionMetrics) AddReceived(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstAudioTime == nil {
		now := time.Now()
		m.FirstAudioTime = &now
	}
	m.ChunksReceived++
	m.AudioReceived += d
}

func (m *SessionMetrics) AddTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Turns++
}

func (m *SessionMetrics) AddInterruption() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Interruptions++
}

// Finalize stamps the end time and returns the session length.
func (m *SessionMetrics) Finalize() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	return m.EndTime.Sub(m.StartTime)
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := end.Sub(m.StartTime)

	var latency time.Duration
	if m.FirstAudioTime != nil {
		latency = m.FirstAudioTime.Sub(m.StartTime)
	}

	var dropRate float64
	if total := m.ChunksSent + m.ChunksDropped; total > 0 {
		dropRate = float64(m.ChunksDropped) / float64(total) * 100
	}

	return fmt.Sprintf(
		"Session: %s\n"+
			"Voice: %s\n"+
			"Language: %s\n"+
			"Duration: %v\n"+
			"Chunks Sent: %d\n"+
			"Chunks Dropped: %d (%.1f%%)\n"+
			"Chunks Received: %d\n"+
			"Audio Received: %.2f seconds\n"+
			"First Audio Latency: %v\n"+
			"Turns: %d\n"+
			"Interruptions: %d\n",
		m.SessionID,
		m.Voice,
		m.Language,
		duration,
		m.ChunksSent,
		m.ChunksDropped,
		dropRate,
		m.ChunksReceived,
		m.AudioReceived.Seconds(),
		latency,
		m.Turns,
		m.Interruptions,
	)
}
