package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

var errStreamEnded = errors.New("input stream ended")

// ReaderMicrophone reads raw mono samples from a stream. With a path it
// reopens the file on every Open, which suits named pipes fed by arecord
// or similar tools. Without a path a single reader goroutine owns the
// stream for its whole life and hands blocks to whichever session is open.
type ReaderMicrophone struct {
	path     string
	reader   io.Reader
	rate     int
	encoding string
	logger   *slog.Logger

	mu     sync.Mutex
	closer io.Closer
	done   chan struct{}

	// stream mode
	attached *attachment
	started  bool
	ended    bool
}

// attachment is one Open of a shared stream.
type attachment struct {
	out  chan []float32
	done chan struct{}
}

// NewReaderMicrophone reads from r. r is never closed by the microphone;
// blocks read while no session is open are discarded.
func NewReaderMicrophone(r io.Reader, rate int, encoding string, logger *slog.Logger) *ReaderMicrophone {
	return newReaderMicrophone("", r, rate, encoding, logger)
}

// NewFileMicrophone reads from the file or FIFO at path.
func NewFileMicrophone(path string, rate int, encoding string, logger *slog.Logger) *ReaderMicrophone {
	return newReaderMicrophone(path, nil, rate, encoding, logger)
}

func newReaderMicrophone(path string, r io.Reader, rate int, encoding string, logger *slog.Logger) *ReaderMicrophone {
	if rate <= 0 {
		rate = audio.InputSampleRate
	}
	if encoding == "" {
		encoding = audio.EncodingS16LE
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderMicrophone{path: path, reader: r, rate: rate, encoding: encoding, logger: logger}
}

func (m *ReaderMicrophone) SampleRate() int { return m.rate }

func (m *ReaderMicrophone) name() string {
	if m.path != "" {
		return m.path
	}
	return "stream"
}

func (m *ReaderMicrophone) Open(ctx context.Context) (<-chan []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: m.name(), Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil || m.attached != nil {
		return nil, &PermissionError{Device: m.name(), Err: errors.New("already open")}
	}

	if m.path == "" {
		return m.attachLocked()
	}

	f, err := os.Open(m.path)
	if err != nil {
		return nil, &PermissionError{Device: m.name(), Err: err}
	}
	m.closer = f

	done := make(chan struct{})
	m.done = done
	out := make(chan []float32, 8)
	go m.read(f, out, done)
	return out, nil
}

func (m *ReaderMicrophone) attachLocked() (<-chan []float32, error) {
	if m.reader == nil {
		return nil, &PermissionError{Device: m.name(), Err: errors.New("no input stream")}
	}
	if m.ended {
		return nil, &PermissionError{Device: m.name(), Err: errStreamEnded}
	}

	a := &attachment{out: make(chan []float32, 8), done: make(chan struct{})}
	m.attached = a
	if !m.started {
		m.started = true
		go m.pump()
	}
	return a.out, nil
}

// read serves one Open of a file path.
func (m *ReaderMicrophone) read(r io.Reader, out chan<- []float32, done <-chan struct{}) {
	defer close(out)

	buf := make([]byte, blockSamples(m.rate)*audio.BytesPerSample(m.encoding))
	for {
		n, err := io.ReadFull(r, buf)
		if samples := m.decode(buf[:n]); len(samples) > 0 {
			select {
			case out <- samples:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case <-done:
			default:
				m.logReadError(err)
			}
			return
		}
	}
}

// pump reads a shared stream until it ends. An attachment's channel is
// closed by pump once it notices the attachment was detached, so sends
// never race with the close.
func (m *ReaderMicrophone) pump() {
	var last *attachment
	buf := make([]byte, blockSamples(m.rate)*audio.BytesPerSample(m.encoding))
	for {
		n, err := io.ReadFull(m.reader, buf)
		samples := m.decode(buf[:n])

		m.mu.Lock()
		current := m.attached
		if err != nil {
			m.ended = true
		}
		m.mu.Unlock()

		if last != nil && last != current {
			close(last.out)
			last = nil
		}
		last = current

		if last != nil && len(samples) > 0 {
			select {
			case last.out <- samples:
			case <-last.done:
				close(last.out)
				last = nil
			}
		}

		if err != nil {
			m.logReadError(err)
			if last != nil {
				close(last.out)
			}
			return
		}
	}
}

func (m *ReaderMicrophone) decode(data []byte) []float32 {
	data = data[:len(data)-len(data)%audio.BytesPerSample(m.encoding)]
	if len(data) == 0 {
		return nil
	}
	samples, err := audio.DecodeSamples(data, m.encoding)
	if err != nil {
		m.logger.Warn("Dropping undecodable microphone block", slog.String("error", err.Error()))
		return nil
	}
	return samples
}

func (m *ReaderMicrophone) logReadError(err error) {
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		m.logger.Warn("Microphone read failed", slog.String("device", m.name()), slog.String("error", err.Error()))
	}
}

// Close stops capture. A file path is released; a shared stream keeps
// being read so the next Open picks up from where it is.
func (m *ReaderMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attached != nil {
		close(m.attached.done)
		m.attached = nil
		return nil
	}

	if m.done == nil {
		return nil
	}
	close(m.done)
	m.done = nil

	var err error
	if m.closer != nil {
		err = m.closer.Close()
		m.closer = nil
	}
	return err
}
