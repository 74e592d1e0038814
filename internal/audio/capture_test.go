package audio

import (
	"math"
	"testing"
)

func TestLoudness(t *testing.T) {
	if got := Loudness(make([]float32, 4096), DefaultLoudnessGain); got != 0 {
		t.Errorf("Expected silent window to be 0, got %f", got)
	}

	loud := make([]float32, 4096)
	for i := range loud {
		loud[i] = 0.5
	}
	if got := Loudness(loud, DefaultLoudnessGain); got != 1 {
		t.Errorf("Expected clamped loudness 1, got %f", got)
	}

	quiet := make([]float32, 100)
	for i := range quiet {
		quiet[i] = 0.1
	}
	if got := Loudness(quiet, DefaultLoudnessGain); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("Expected loudness 0.5, got %f", got)
	}
}

func TestPipelineWindows(t *testing.T) {
	out := make(chan Chunk, 8)
	var levels []float64

	pipeline := NewPipeline(PipelineConfig{
		WindowSize: 4,
		SampleRate: 16000,
		Loudness:   func(level float64) { levels = append(levels, level) },
	}, out)

	if n := pipeline.Write([]float32{0.1, 0.1, 0.1}); n != 0 {
		t.Fatalf("Expected no complete window, got %d", n)
	}
	if n := pipeline.Write([]float32{0.1, 0, 0, 0, 0, 0}); n != 1 {
		t.Fatalf("Expected one complete window, got %d", n)
	}
	if n := pipeline.Write([]float32{0, 0}); n != 1 {
		t.Fatalf("Expected second window, got %d", n)
	}

	if len(out) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(out))
	}
	if len(levels) != 2 {
		t.Fatalf("Expected 2 loudness levels, got %d", len(levels))
	}
	if levels[1] != 0 {
		t.Errorf("Expected silent second window, got %f", levels[1])
	}

	chunk := <-out
	if chunk.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz chunk, got %d", chunk.SampleRate)
	}
	frame, err := DecodeChunk(chunk, 1)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if frame.Len() != 4 {
		t.Errorf("Expected 4 samples, got %d", frame.Len())
	}
}

func TestPipelineDropsWhenFull(t *testing.T) {
	out := make(chan Chunk, 1)
	dropped := 0

	pipeline := NewPipeline(PipelineConfig{
		WindowSize: 2,
		Dropped:    func(Chunk) { dropped++ },
	}, out)

	pipeline.Write(make([]float32, 8))

	if pipeline.Sent() != 1 {
		t.Errorf("Expected 1 sent chunk, got %d", pipeline.Sent())
	}
	if pipeline.Dropped() != 3 || dropped != 3 {
		t.Errorf("Expected 3 dropped chunks, got %d (callback %d)", pipeline.Dropped(), dropped)
	}
}

func TestPipelineResamplesDeviceRate(t *testing.T) {
	out := make(chan Chunk, 4)
	pipeline := NewPipeline(PipelineConfig{
		WindowSize: 320,
		DeviceRate: 8000,
		SampleRate: 16000,
	}, out)

	// The last input sample is held back until the next block arrives.
	if n := pipeline.Write(make([]float32, 160)); n != 0 {
		t.Fatalf("Expected 319 resampled samples to leave the window open, got %d windows", n)
	}
	if n := pipeline.Write(make([]float32, 160)); n != 1 {
		t.Fatalf("Expected two 8kHz blocks to fill one 320 window, got %d", n)
	}
	if len(pipeline.pending) != 319 {
		t.Errorf("Expected 319 pending samples, got %d", len(pipeline.pending))
	}
}
