package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talupulahemanth/voiceassist/internal/audio"
)

// DefaultPeriod is the render cadence: 20 ms matches one AudioSocket slin
// frame at 8 kHz.
const DefaultPeriod = 20 * time.Millisecond

// Sink consumes rendered 16-bit little-endian PCM.
type Sink interface {
	WritePCM(pcm []byte) error
	SampleRate() int
	Channels() int
	Close() error
}

// StreamOutput renders scheduled sources into a Sink. Its clock is the
// amount of audio rendered so far, so it only advances while Run is
// rendering.
type StreamOutput struct {
	sink         Sink
	period       time.Duration
	periodFrames int
	logger       *slog.Logger

	mu       sync.Mutex
	sources  []*Source
	position int64
}

// NewStreamOutput creates an output that renders one period per tick.
func NewStreamOutput(sink Sink, period time.Duration, logger *slog.Logger) *StreamOutput {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StreamOutput{
		sink:         sink,
		period:       period,
		periodFrames: int(int64(period) * int64(sink.SampleRate()) / int64(time.Second)),
		logger:       logger,
	}
}

func (o *StreamOutput) SampleRate() int { return o.sink.SampleRate() }

func (o *StreamOutput) Channels() int { return o.sink.Channels() }

// Now returns the render clock.
func (o *StreamOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return framesToDuration(o.position, int64(o.sink.SampleRate()))
}

// Play queues src for rendering.
func (o *StreamOutput) Play(src *Source) error {
	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	return nil
}

// Stop removes src and signals its end.
func (o *StreamOutput) Stop(src *Source) {
	o.mu.Lock()
	for i, queued := range o.sources {
		if queued == src {
			o.sources = append(o.sources[:i], o.sources[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	src.Ended()
}

// Pending returns the number of queued sources.
func (o *StreamOutput) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sources)
}

// Render mixes one period of audio, writes it to the sink and fires the
// ended hooks of sources that completed inside the period.
func (o *StreamOutput) Render() error {
	channels := o.sink.Channels()

	o.mu.Lock()
	start := o.position
	end := start + int64(o.periodFrames)
	mix := make([]float32, o.periodFrames*channels)

	var finished []*Source
	remaining := o.sources[:0]
	for _, src := range o.sources {
		if src.Frame.Channels != channels {
			o.logger.Warn("Dropping source with mismatched channel layout",
				slog.String("source_id", src.ID.String()),
				slog.Int("channels", src.Frame.Channels),
			)
			finished = append(finished, src)
			continue
		}
		srcStart := durationToFrames(src.Start, int64(o.sink.SampleRate()))
		srcEnd := srcStart + int64(src.Frame.Len())

		from := max(start, srcStart)
		to := min(end, srcEnd)
		for frame := from; frame < to; frame++ {
			in := (frame - srcStart) * int64(channels)
			out := (frame - start) * int64(channels)
			for ch := int64(0); ch < int64(channels); ch++ {
				mix[out+ch] += src.Frame.Samples[in+ch]
			}
		}

		if srcEnd <= end {
			finished = append(finished, src)
		} else {
			remaining = append(remaining, src)
		}
	}
	clear(o.sources[len(remaining):])
	o.sources = remaining
	o.position = end
	o.mu.Unlock()

	err := o.sink.WritePCM(audio.Quantize(mix))

	for _, src := range finished {
		src.Ended()
	}
	return err
}

// Run renders in real time until ctx is cancelled.
func (o *StreamOutput) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Render(); err != nil {
				o.logger.Warn("Failed to write output audio", slog.String("error", err.Error()))
			}
		}
	}
}
