package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// AudioSocketSampleRate is the slin rate Asterisk uses on AudioSocket.
const AudioSocketSampleRate = 8000

const idTimeout = 5 * time.Second

// AudioSocket accepts Asterisk AudioSocket calls and exposes the current
// call as a microphone and a sink. One call is served at a time; calls
// that arrive while another is waiting are hung up.
type AudioSocket struct {
	addr     string
	logger   *slog.Logger
	incoming chan *call

	mu       sync.Mutex
	listener net.Listener
	active   *call
	closed   bool
}

type call struct {
	id   uuid.UUID
	conn net.Conn

	writeMu    sync.Mutex
	hangupOnce sync.Once
}

func (c *call) write(pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for len(pcm) > 0 {
		n := min(audiosocket.DefaultSlinChunkSize, len(pcm))
		if _, err := c.conn.Write(audiosocket.SlinMessage(pcm[:n])); err != nil {
			return fmt.Errorf("failed to send audio to call %s: %w", c.id, err)
		}
		pcm = pcm[n:]
	}
	return nil
}

func (c *call) hangup() {
	c.hangupOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.Write(audiosocket.HangupMessage())
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

// NewAudioSocket creates an AudioSocket endpoint on addr.
func NewAudioSocket(addr string, logger *slog.Logger) *AudioSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioSocket{
		addr:     addr,
		logger:   logger,
		incoming: make(chan *call, 1),
	}
}

// Listen starts accepting calls.
func (a *AudioSocket) Listen() error {
	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.addr, err)
	}

	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()

	a.logger.Info("AudioSocket listening", slog.String("addr", listener.Addr().String()))
	go a.acceptLoop(listener)
	return nil
}

// Addr returns the bound address once listening.
func (a *AudioSocket) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

func (a *AudioSocket) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("Accept error", slog.String("error", err.Error()))
			continue
		}
		go a.handshake(conn)
	}
}

func (a *AudioSocket) handshake(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(idTimeout))
	id, err := audiosocket.GetID(conn)
	if err != nil {
		a.logger.Warn("Failed to get call ID",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()),
		)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	c := &call{id: id, conn: conn}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		c.hangup()
		return
	}

	select {
	case a.incoming <- c:
		a.logger.Info("Call waiting", slog.String("call_id", id.String()))
	default:
		a.logger.Warn("Busy, hanging up call", slog.String("call_id", id.String()))
		c.hangup()
	}
}

func (a *AudioSocket) setActive(c *call) {
	a.mu.Lock()
	a.active = c
	a.mu.Unlock()
}

func (a *AudioSocket) clearActive(c *call) {
	a.mu.Lock()
	if a.active == c {
		a.active = nil
	}
	a.mu.Unlock()
}

func (a *AudioSocket) current() *call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Close stops listening and hangs up every call.
func (a *AudioSocket) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	listener := a.listener
	active := a.active
	a.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	if active != nil {
		active.hangup()
	}
	for {
		select {
		case c := <-a.incoming:
			c.hangup()
		default:
			return err
		}
	}
}

// Microphone returns the inbound side of the current call.
func (a *AudioSocket) Microphone() *AudioSocketMicrophone {
	return &AudioSocketMicrophone{socket: a}
}

// Sink returns the outbound side of the current call.
func (a *AudioSocket) Sink() *AudioSocketSink {
	return &AudioSocketSink{socket: a}
}

// AudioSocketMicrophone waits for a call on Open and streams its slin
// audio. Close hangs the call up.
type AudioSocketMicrophone struct {
	socket *AudioSocket

	mu   sync.Mutex
	call *call
	done chan struct{}
}

func (m *AudioSocketMicrophone) SampleRate() int { return AudioSocketSampleRate }

func (m *AudioSocketMicrophone) Open(ctx context.Context) (<-chan []float32, error) {
	device := "audiosocket " + m.socket.addr

	m.mu.Lock()
	busy := m.call != nil
	m.mu.Unlock()
	if busy {
		return nil, &PermissionError{Device: device, Err: errors.New("already open")}
	}

	var c *call
	select {
	case c = <-m.socket.incoming:
	case <-ctx.Done():
		return nil, &PermissionError{Device: device, Err: ctx.Err()}
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.call = c
	m.done = done
	m.mu.Unlock()

	m.socket.setActive(c)
	m.socket.logger.Info("Call connected", slog.String("call_id", c.id.String()))

	out := make(chan []float32, 8)
	go m.read(c, out, done)
	return out, nil
}

func (m *AudioSocketMicrophone) read(c *call, out chan<- []float32, done <-chan struct{}) {
	defer close(out)
	defer m.socket.clearActive(c)

	for {
		msg, err := audiosocket.NextMessage(c.conn)
		if err != nil {
			select {
			case <-done:
			default:
				if err != io.EOF {
					m.socket.logger.Warn("Failed to read call audio",
						slog.String("call_id", c.id.String()),
						slog.String("error", err.Error()),
					)
				}
			}
			return
		}

		switch msg.Kind() {
		case audiosocket.KindSlin:
			samples, err := audio.DecodeSamples(msg.Payload(), audio.EncodingS16LE)
			if err != nil || len(samples) == 0 {
				continue
			}
			select {
			case out <- samples:
			case <-done:
				return
			}

		case audiosocket.KindHangup:
			m.socket.logger.Info("Received hangup", slog.String("call_id", c.id.String()))
			return

		case audiosocket.KindError:
			m.socket.logger.Warn("Call reported error",
				slog.String("call_id", c.id.String()),
				slog.Int("code", int(msg.ErrorCode())),
			)
			return
		}
	}
}

func (m *AudioSocketMicrophone) Close() error {
	m.mu.Lock()
	c, done := m.call, m.done
	m.call, m.done = nil, nil
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	close(done)
	c.hangup()
	return nil
}

// AudioSocketSink plays rendered 8 kHz PCM into the current call. Audio is
// discarded while no call is connected.
type AudioSocketSink struct {
	socket *AudioSocket
}

func (s *AudioSocketSink) WritePCM(pcm []byte) error {
	c := s.socket.current()
	if c == nil {
		return nil
	}
	return c.write(pcm)
}

func (s *AudioSocketSink) SampleRate() int { return AudioSocketSampleRate }
func (s *AudioSocketSink) Channels() int   { return 1 }
func (s *AudioSocketSink) Close() error    { return nil }
