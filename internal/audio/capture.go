package audio

import (
	"math"
	"sync/atomic"
)

// Capture defaults matching the live API contract.
const (
	DefaultWindowSize   = 4096
	DefaultLoudnessGain = 5.0
)

// Loudness returns the visualization level of a window: RMS scaled by gain
// and clamped to 1. An empty window is silent.
func Loudness(samples []float32, gain float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return math.Min(1, rms*gain)
}

// PipelineConfig configures a capture pipeline.
type PipelineConfig struct {
	// WindowSize is the number of samples per outbound chunk.
	WindowSize int
	// DeviceRate is the rate of the samples handed to Write. Zero means
	// SampleRate.
	DeviceRate int
	// SampleRate is the outbound chunk rate.
	SampleRate int
	Gain       float64

	// Loudness receives one level per window.
	Loudness func(level float64)
	// Dropped is called when a chunk is discarded because the outbound
	// channel was full.
	Dropped func(chunk Chunk)
}

// Pipeline turns pushed microphone samples into outbound chunks. It is
// driven by a single producer and never blocks on the outbound channel.
type Pipeline struct {
	config    PipelineConfig
	out       chan<- Chunk
	pending   []float32
	resampler *Resampler

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewPipeline creates a capture pipeline writing to out.
func NewPipeline(config PipelineConfig, out chan<- Chunk) *Pipeline {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.SampleRate <= 0 {
		config.SampleRate = InputSampleRate
	}
	if config.DeviceRate <= 0 {
		config.DeviceRate = config.SampleRate
	}
	if config.Gain <= 0 {
		config.Gain = DefaultLoudnessGain
	}

	return &Pipeline{
		config:    config,
		out:       out,
		pending:   make([]float32, 0, config.WindowSize),
		resampler: NewResampler(config.DeviceRate, config.SampleRate),
	}
}

// Write appends samples and processes every complete window. It returns
// the number of windows processed.
func (p *Pipeline) Write(samples []float32) int {
	samples = p.resampler.Process(samples)

	windows := 0
	for len(samples) > 0 {
		n := p.config.WindowSize - len(p.pending)
		if n > len(samples) {
			n = len(samples)
		}
		p.pending = append(p.pending, samples[:n]...)
		samples = samples[n:]

		if len(p.pending) == p.config.WindowSize {
			p.process(p.pending)
			p.pending = p.pending[:0]
			windows++
		}
	}
	return windows
}

func (p *Pipeline) process(window []float32) {
	if p.config.Loudness != nil {
		p.config.Loudness(Loudness(window, p.config.Gain))
	}

	chunk := EncodeFrame(window, p.config.SampleRate)
	select {
	case p.out <- chunk:
		p.sent.Add(1)
	default:
		p.dropped.Add(1)
		if p.config.Dropped != nil {
			p.config.Dropped(chunk)
		}
	}
}

// Sent returns the number of chunks handed to the outbound channel.
func (p *Pipeline) Sent() uint64 { return p.sent.Load() }

// Dropped returns the number of chunks discarded under backpressure.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }
