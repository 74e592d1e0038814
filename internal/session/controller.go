package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talupulahemanth/voiceassist/internal/audio"
	"github.com/talupulahemanth/voiceassist/internal/config"
	"github.com/talupulahemanth/voiceassist/internal/device"
	"github.com/talupulahemanth/voiceassist/internal/live"
	"github.com/talupulahemanth/voiceassist/internal/metrics"
	"github.com/talupulahemanth/voiceassist/internal/playback"
	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

var (
	// ErrStaleSession marks an event from a session that is no longer
	// current. Such events are discarded.
	ErrStaleSession = errors.New("session: event from stale session")

	ErrUnknownVoice    = errors.New("unknown voice")
	ErrUnknownLanguage = errors.New("unknown language")
)

const defaultMaxEntries = 200

// Options wires a controller to its collaborators.
type Options struct {
	Assistant config.AssistantConfig
	Audio     config.AudioConfig
	Model     string

	Connector  live.Connector
	Microphone device.Microphone
	Output     playback.Output

	// Recorder persists finalized entries. Optional.
	Recorder *transcript.Recorder
	// Metrics defaults to collectors on a private registry.
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// MaxEntries bounds the caption history kept for snapshots.
	MaxEntries int
	Now        func() time.Time
}

// run is one live session and the goroutines serving it.
type run struct {
	id        uuid.UUID
	session   live.Session
	scheduler *playback.Scheduler
	pipeline  *audio.Pipeline
	outbound  chan audio.Chunk
	stats     *metrics.SessionMetrics
	samples   <-chan []float32
	done      chan struct{}
	// stopped is closed once teardown has released every resource.
	stopped chan struct{}
}

// Controller owns the session lifecycle and routes every inbound event.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	current     *run
	stopping    chan struct{}
	startCancel context.CancelFunc
	voice       string
	language    string
	captions    bool
	loudness    float64
	buffer      transcript.Buffer
	entries     []transcript.Entry
	lastErr     string
	subs        map[chan Snapshot]struct{}
}

// New creates an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Connector == nil {
		return nil, fmt.Errorf("live connector is required")
	}
	if opts.Microphone == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if opts.Output == nil {
		return nil, fmt.Errorf("output is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Audio.InputRate <= 0 {
		opts.Audio.InputRate = audio.InputSampleRate
	}
	if opts.Audio.OutputRate <= 0 {
		opts.Audio.OutputRate = audio.OutputSampleRate
	}
	if opts.Audio.OutboundBuffer <= 0 {
		opts.Audio.OutboundBuffer = 4
	}

	voice, ok := opts.Assistant.FindVoice(opts.Assistant.Voice)
	if !ok {
		voice, _ = opts.Assistant.FindVoice(config.DefaultVoice)
	}
	language, ok := opts.Assistant.FindLanguage(opts.Assistant.Language)
	if !ok {
		language, _ = opts.Assistant.FindLanguage(config.DefaultLanguage)
	}

	return &Controller{
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		voice:    voice.Name,
		language: language.Code,
		captions: opts.Assistant.Captions,
		subs:     make(map[chan Snapshot]struct{}),
	}, nil
}

// Start opens the microphone and the live session and begins streaming.
// Starting while a session is active or starting is a no-op. A session
// that is still being torn down is waited for. On failure everything
// opened so far is released and the controller stays idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	for c.stopping != nil {
		stopping := c.stopping
		c.mu.Unlock()
		select {
		case <-stopping:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	if c.current != nil || c.startCancel != nil {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.startCancel = cancel
	voice, language := c.voice, c.language
	c.mu.Unlock()

	r, err := c.open(ctx, voice, language)

	c.mu.Lock()
	c.startCancel = nil
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		c.lastErr = err.Error()
		c.mu.Unlock()
		cancel()
		if r != nil {
			close(r.done)
			r.session.Close()
			c.opts.Microphone.Close()
			r.scheduler.Stop()
		}
		c.logger.Error("Failed to start session", slog.String("error", err.Error()))
		c.publish()
		return err
	}
	c.current = r
	c.buffer.Reset()
	c.loudness = 0
	c.lastErr = ""
	go c.capture(r)
	go c.send(r)
	go c.pump(r)
	c.mu.Unlock()
	cancel()

	c.metrics.SessionsStarted.Inc()
	c.logger.Info("Session started",
		slog.String("session_id", r.id.String()),
		slog.String("voice", voice),
		slog.String("language", language),
	)
	c.publish()
	return nil
}

func (c *Controller) open(ctx context.Context, voice, language string) (*run, error) {
	prompt, err := c.opts.Assistant.SystemPrompt(voice, language)
	if err != nil {
		return nil, err
	}

	samples, err := c.opts.Microphone.Open(ctx)
	if err != nil {
		c.metrics.SessionErrors.WithLabelValues("permission").Inc()
		var permErr *device.PermissionError
		if !errors.As(err, &permErr) {
			err = &device.PermissionError{Device: "microphone", Err: err}
		}
		return nil, err
	}

	sess, err := c.opts.Connector.Connect(ctx, live.Config{
		Model:               c.opts.Model,
		Voice:               voice,
		SystemPrompt:        prompt,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		c.opts.Microphone.Close()
		c.metrics.SessionErrors.WithLabelValues("connection").Inc()
		var connErr *live.ConnectionError
		if !errors.As(err, &connErr) {
			err = &live.ConnectionError{Op: "connect", Err: err}
		}
		return nil, err
	}

	id := uuid.New()
	r := &run{
		id:       id,
		session:  sess,
		outbound: make(chan audio.Chunk, c.opts.Audio.OutboundBuffer),
		stats:    metrics.NewSessionMetrics(id.String(), voice, language),
		samples:  samples,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	r.scheduler = playback.NewScheduler(c.opts.Output, playback.SchedulerConfig{
		SampleRate: c.opts.Audio.OutputRate,
		Channels:   1,
		OnIdle:     func() { c.handleIdle(id) },
		Logger:     c.logger,
	})
	r.pipeline = audio.NewPipeline(audio.PipelineConfig{
		WindowSize: c.opts.Audio.WindowSize,
		DeviceRate: c.opts.Microphone.SampleRate(),
		SampleRate: c.opts.Audio.InputRate,
		Gain:       c.opts.Audio.Gain,
		Loudness:   func(level float64) { c.setLoudness(id, level) },
		Dropped: func(audio.Chunk) {
			c.metrics.ChunksDropped.Inc()
			r.stats.AddDropped()
		},
	}, r.outbound)

	return r, nil
}

// Stop ends the current session, or aborts one that is starting. It
// returns once the session's resources are released and is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.startCancel != nil {
		c.startCancel()
	}
	r := c.detachLocked()
	stopping := c.stopping
	c.mu.Unlock()

	if r != nil {
		c.teardown(r, "stopped")
		return
	}
	if stopping != nil {
		<-stopping
	}
}

func (c *Controller) detachLocked() *run {
	r := c.current
	if r == nil {
		return nil
	}
	c.current = nil
	c.stopping = r.stopped
	close(r.done)
	c.buffer.Reset()
	c.loudness = 0
	return r
}

func (c *Controller) teardown(r *run, reason string) {
	if err := r.session.Close(); err != nil {
		c.logger.Debug("Failed to close live session", slog.String("error", err.Error()))
	}
	if err := c.opts.Microphone.Close(); err != nil {
		c.logger.Debug("Failed to close microphone", slog.String("error", err.Error()))
	}
	r.scheduler.Stop()

	c.mu.Lock()
	if c.stopping == r.stopped {
		c.stopping = nil
	}
	c.mu.Unlock()
	close(r.stopped)

	c.metrics.SessionDuration.Observe(r.stats.Finalize().Seconds())
	c.logger.Info("Session ended",
		slog.String("session_id", r.id.String()),
		slog.String("reason", reason),
	)
	c.logger.Debug("Session summary\n" + r.stats.Summary())
	c.publish()
}

// fail stops session id because of a local failure.
func (c *Controller) fail(id uuid.UUID, kind string, err error) {
	c.mu.Lock()
	if c.current == nil || c.current.id != id {
		c.mu.Unlock()
		return
	}
	c.lastErr = err.Error()
	r := c.detachLocked()
	c.mu.Unlock()

	c.metrics.SessionErrors.WithLabelValues(kind).Inc()
	c.logger.Warn("Session failed", slog.String("session_id", id.String()), slog.String("error", err.Error()))
	c.teardown(r, kind)
}

func (c *Controller) capture(r *run) {
	for {
		select {
		case <-r.done:
			return
		case block, ok := <-r.samples:
			if !ok {
				c.fail(r.id, "microphone", errors.New("microphone stream ended"))
				return
			}
			r.pipeline.Write(block)
		}
	}
}

func (c *Controller) send(r *run) {
	for {
		select {
		case <-r.done:
			return
		case chunk := <-r.outbound:
			if err := r.session.SendAudio(chunk); err != nil {
				if errors.Is(err, live.ErrSessionClosed) {
					return
				}
				c.fail(r.id, "connection", err)
				return
			}
			c.metrics.ChunksSent.Inc()
			r.stats.AddSent()
		}
	}
}

func (c *Controller) pump(r *run) {
	events := r.session.Events()
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-events:
			if !ok {
				c.fail(r.id, "connection", errors.New("live session ended"))
				return
			}
			if err := c.dispatch(r.id, ev); errors.Is(err, ErrStaleSession) {
				c.logger.Debug("Discarding event", slog.String("event", live.Name(ev)), slog.String("error", err.Error()))
			}
		}
	}
}

// dispatch applies one inbound event for session id.
func (c *Controller) dispatch(id uuid.UUID, ev live.Event) error {
	c.mu.Lock()
	r := c.current
	if r == nil || r.id != id {
		c.mu.Unlock()
		return ErrStaleSession
	}

	var ended *run
	reason := ""
	switch ev := ev.(type) {
	case live.AudioChunk:
		c.metrics.ChunksReceived.Inc()
		src, err := r.scheduler.Enqueue(ev.Chunk)
		if err != nil {
			c.metrics.DecodeErrors.Inc()
			c.logger.Warn("Dropping malformed audio chunk",
				slog.String("session_id", id.String()),
				slog.String("error", err.Error()),
			)
			break
		}
		r.stats.AddReceived(src.Duration())

	case live.TranscriptFragment:
		if err := c.buffer.Append(ev.Role, ev.Text); err != nil {
			c.logger.Warn("Dropping transcript fragment", slog.String("error", err.Error()))
		}

	case live.TurnComplete:
		entries := c.buffer.Flush(c.opts.Now())
		c.entries = append(c.entries, entries...)
		if over := len(c.entries) - c.opts.MaxEntries; over > 0 {
			c.entries = append([]transcript.Entry(nil), c.entries[over:]...)
		}
		c.metrics.TurnsCompleted.Inc()
		c.metrics.TranscriptEntries.Add(float64(len(entries)))
		r.stats.AddTurn()
		if c.opts.Recorder != nil && !c.opts.Recorder.Record(id.String(), entries) {
			c.metrics.TranscriptDropped.Add(float64(len(entries)))
		}

	case live.Interrupted:
		n := r.scheduler.Interrupt()
		c.metrics.Interruptions.Inc()
		r.stats.AddInterruption()
		c.logger.Debug("Playback interrupted", slog.Int("sources", n))

	case live.Error:
		if ev.Err != nil {
			c.lastErr = ev.Err.Error()
		}
		c.metrics.SessionErrors.WithLabelValues("connection").Inc()
		reason = "error"
		ended = c.detachLocked()

	case live.Closed:
		reason = strings.TrimSpace("closed " + ev.Reason)
		ended = c.detachLocked()
	}
	c.mu.Unlock()

	if ended != nil {
		c.teardown(ended, reason)
		return nil
	}
	c.publish()
	return nil
}

func (c *Controller) handleIdle(id uuid.UUID) {
	c.mu.Lock()
	stale := c.current == nil || c.current.id != id
	c.mu.Unlock()
	if !stale {
		c.publish()
	}
}

func (c *Controller) setLoudness(id uuid.UUID, level float64) {
	c.mu.Lock()
	if c.current == nil || c.current.id != id {
		c.mu.Unlock()
		return
	}
	c.loudness = level
	c.mu.Unlock()

	c.metrics.Loudness.Set(level)
	c.publish()
}

// State derives the UI state from the session and playback.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.current == nil:
		return StateIdle
	case c.current.scheduler.Speaking():
		return StateSpeaking
	default:
		return StateActive
	}
}

// Snapshot returns a copy of the UI state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    c.stateLocked(),
		Loudness: c.loudness,
		Captions: c.captions,
		Voice:    c.voice,
		Language: c.language,
		Pending:  c.buffer.Pending(),
		Entries:  append([]transcript.Entry(nil), c.entries...),
		Error:    c.lastErr,
	}
	if c.current != nil {
		snap.SessionID = c.current.id.String()
	}
	return snap
}

// Subscribe returns a channel of snapshots published on every change.
// Slow subscribers miss updates instead of blocking the session. Call the
// returned function to unsubscribe.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	active := 0
	if c.current != nil {
		active = c.current.scheduler.Active()
	}
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	c.mu.Unlock()

	c.metrics.SessionState.Set(float64(snap.State))
	c.metrics.ActiveSources.Set(float64(active))
}

// SelectVoice changes the voice used by the next session.
func (c *Controller) SelectVoice(name string) error {
	voice, ok := c.opts.Assistant.FindVoice(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}

	c.mu.Lock()
	c.voice = voice.Name
	c.mu.Unlock()

	c.logger.Info("Voice selected", slog.String("voice", voice.Name))
	c.publish()
	return nil
}

// SelectLanguage changes the response language used by the next session.
func (c *Controller) SelectLanguage(code string) error {
	language, ok := c.opts.Assistant.FindLanguage(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}

	c.mu.Lock()
	c.language = language.Code
	c.mu.Unlock()

	c.logger.Info("Language selected", slog.String("language", language.Code))
	c.publish()
	return nil
}

// ToggleCaptions flips caption visibility and returns the new value.
func (c *Controller) ToggleCaptions() bool {
	c.mu.Lock()
	c.captions = !c.captions
	captions := c.captions
	c.mu.Unlock()

	c.publish()
	return captions
}

// Voices returns the voice catalog.
func (c *Controller) Voices() []config.Voice {
	return c.opts.Assistant.VoiceCatalog()
}

// Languages returns the language catalog.
func (c *Controller) Languages() []config.Language {
	return c.opts.Assistant.LanguageCatalog()
}
