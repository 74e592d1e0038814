package device

import (
	"io"
	"os"
	"sync"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// WriterSink writes rendered output to a stream, optionally as mu-law.
type WriterSink struct {
	w        io.Writer
	rate     int
	channels int
	encoding string

	mu sync.Mutex
}

// NewWriterSink writes to w.
func NewWriterSink(w io.Writer, rate, channels int, encoding string) *WriterSink {
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	if encoding == "" {
		encoding = audio.EncodingS16LE
	}
	return &WriterSink{w: w, rate: rate, channels: channels, encoding: encoding}
}

// OpenFileSink appends to the file or FIFO at path.
func OpenFileSink(path string, rate, channels int, encoding string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriterSink(f, rate, channels, encoding), nil
}

func (s *WriterSink) WritePCM(pcm []byte) error {
	data, err := audio.EncodeSamples(pcm, s.encoding)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

func (s *WriterSink) SampleRate() int { return s.rate }
func (s *WriterSink) Channels() int   { return s.channels }

func (s *WriterSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DiscardSink accepts and drops all output.
type DiscardSink struct {
	Rate int
	// Channels defaults to mono.
	Chans int
}

func (d DiscardSink) WritePCM([]byte) error { return nil }

func (d DiscardSink) SampleRate() int {
	if d.Rate <= 0 {
		return audio.OutputSampleRate
	}
	return d.Rate
}

func (d DiscardSink) Channels() int {
	if d.Chans <= 0 {
		return 1
	}
	return d.Chans
}

func (d DiscardSink) Close() error { return nil }
