package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/talupulahemanth/voiceassist/internal/audio"
	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

const (
	DefaultURL   = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

	DefaultEventBuffer = 256

	writeTimeout = 5 * time.Second
)

// Config describes the remote session to open.
type Config struct {
	Model        string
	Voice        string
	SystemPrompt string

	InputTranscription  bool
	OutputTranscription bool
}

// Session is an open bidirectional live session.
type Session interface {
	SendAudio(chunk audio.Chunk) error
	// Events delivers inbound events in arrival order. It is closed after
	// the Closed event.
	Events() <-chan Event
	Close() error
}

// Connector opens live sessions.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// Client connects to the live service over a WebSocket.
type Client struct {
	URL         string
	APIKey      string
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
	EventBuffer int
}

// Connect dials the service, sends the setup message and waits for the
// setup acknowledgement. Cancelling ctx aborts the handshake.
func (c *Client) Connect(ctx context.Context, cfg Config) (Session, error) {
	if c.APIKey == "" {
		return nil, &ConnectionError{Op: "dial", Err: ErrMissingAPIKey}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		connErr := &ConnectionError{Op: "dial", Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		return nil, connErr
	}

	setupBytes, err := sonic.Marshal(newSetupMessage(cfg))
	if err != nil {
		ws.Close()
		return nil, &ConnectionError{Op: "setup", Err: err}
	}
	if err := ws.WriteMessage(websocket.TextMessage, setupBytes); err != nil {
		ws.Close()
		return nil, &ConnectionError{Op: "setup", Err: err}
	}

	if err := awaitSetup(ctx, ws); err != nil {
		ws.Close()
		return nil, &ConnectionError{Op: "handshake", Err: err}
	}

	buffer := c.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	conn := &Conn{
		ws:     ws,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go conn.readLoop()

	logger.Info("Live session established",
		slog.String("model", setupModel(cfg)),
		slog.String("voice", cfg.Voice),
	)
	return conn, nil
}

func (c *Client) endpoint() (string, error) {
	raw := c.URL
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid live URL %q: %w", raw, err)
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func awaitSetup(ctx context.Context, ws *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		ws.Close()
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		var msg serverMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("invalid setup response: %w", err)
		}
		if msg.SetupComplete != nil {
			if !stop() {
				return ctx.Err()
			}
			return nil
		}
	}
}

func setupModel(cfg Config) string {
	if cfg.Model == "" {
		return DefaultModel
	}
	return cfg.Model
}

func newSetupMessage(cfg Config) setupMessage {
	s := setup{
		Model: setupModel(cfg),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemPrompt != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemPrompt}}}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &transcriptionCfg{}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &transcriptionCfg{}
	}
	return setupMessage{Setup: s}
}

// Conn is an established live session.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	events chan Event

	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// SendAudio transmits one microphone chunk.
func (c *Conn) SendAudio(chunk audio.Chunk) error {
	if c.closing.Load() {
		return ErrSessionClosed
	}

	data, err := sonic.Marshal(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			Audio: &blob{MIMEType: chunk.MIMEType(), Data: chunk.Data},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal realtime input: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.closing.Load() {
			return ErrSessionClosed
		}
		return &ConnectionError{Op: "send", Err: err}
	}
	return nil
}

func (c *Conn) Events() <-chan Event {
	return c.events
}

// Close ends the session. It is safe to call more than once and never
// waits for the remote side.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		var msg serverMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to parse live message", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) finish(err error) {
	if c.closing.Load() {
		c.offer(Closed{Reason: "closed by client"})
		return
	}

	reason := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		reason = strings.TrimSpace(fmt.Sprintf("%d %s", closeErr.Code, closeErr.Text))
		if closeErr.Code == websocket.CloseNormalClosure {
			c.emit(Closed{Reason: reason})
			return
		}
	}

	c.logger.Warn("Live session read failed", slog.String("error", err.Error()))
	c.emit(Error{Err: &ConnectionError{Op: "read", Err: err}})
	c.emit(Closed{Reason: reason})
}

// dispatch emits the events carried by one server message: audio parts,
// then input and output captions, then turn completion and interruption.
func (c *Conn) dispatch(msg serverMessage) {
	if msg.GoAway != nil {
		c.logger.Warn("Live service is going away", slog.String("time_left", msg.GoAway.TimeLeft))
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			c.emit(AudioChunk{Chunk: audio.Chunk{
				Data:       p.InlineData.Data,
				SampleRate: audio.ParseRate(p.InlineData.MIMEType, audio.OutputSampleRate),
			}})
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(TranscriptFragment{Role: transcript.RoleUser, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(TranscriptFragment{Role: transcript.RoleModel, Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		c.emit(TurnComplete{})
	}
	if sc.Interrupted {
		c.emit(Interrupted{})
	}
}

// emit blocks until the consumer takes ev or the session is closed locally.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) offer(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
