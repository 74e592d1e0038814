package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// WAVMicrophone plays a WAV file into the session in real time, then
// continues with silence until closed so the reply can be heard.
type WAVMicrophone struct {
	path  string
	frame audio.Frame
	Loop  bool

	mu   sync.Mutex
	done chan struct{}
}

// NewWAVMicrophone loads path and downmixes it to mono.
func NewWAVMicrophone(path string) (*WAVMicrophone, error) {
	wav, err := audio.LoadWAV(path)
	if err != nil {
		return nil, &PermissionError{Device: path, Err: err}
	}
	frame, err := wav.Frame()
	if err != nil {
		return nil, &PermissionError{Device: path, Err: err}
	}
	return &WAVMicrophone{path: path, frame: audio.Remix(frame, 1)}, nil
}

func (m *WAVMicrophone) SampleRate() int { return m.frame.SampleRate }

func (m *WAVMicrophone) Open(ctx context.Context) (<-chan []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: m.path, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return nil, &PermissionError{Device: m.path, Err: errors.New("already open")}
	}

	done := make(chan struct{})
	m.done = done
	out := make(chan []float32, 8)
	go m.play(out, done)
	return out, nil
}

func (m *WAVMicrophone) play(out chan<- []float32, done <-chan struct{}) {
	defer close(out)

	block := blockSamples(m.frame.SampleRate)
	silence := make([]float32, block)
	ticker := time.NewTicker(DefaultBlock)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		next := silence
		if pos < len(m.frame.Samples) {
			end := min(pos+block, len(m.frame.Samples))
			next = m.frame.Samples[pos:end]
			pos = end
			if pos >= len(m.frame.Samples) && m.Loop {
				pos = 0
			}
		}

		select {
		case out <- next:
		case <-done:
			return
		}
	}
}

func (m *WAVMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	return nil
}
