package audio

import (
	"bytes"
	"testing"
)

func TestResampleLength(t *testing.T) {
	testCases := []struct {
		from, to int
		in, out  int
	}{
		{24000, 8000, 480, 160},
		{8000, 16000, 160, 320},
		{24000, 48000, 480, 960},
		{16000, 16000, 100, 100},
	}

	for _, tc := range testCases {
		got := Resample(make([]float32, tc.in), 1, tc.from, tc.to)
		if len(got) != tc.out {
			t.Errorf("Resample %d->%d: expected %d samples, got %d", tc.from, tc.to, tc.out, len(got))
		}
	}
}

func TestResampleInterpolates(t *testing.T) {
	got := Resample([]float32{0, 1}, 1, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestResamplerJoinsBlocks(t *testing.T) {
	testCases := []struct {
		name     string
		from, to int
		block    int
		blocks   int
	}{
		{"8k to 16k", 8000, 16000, 160, 10},
		{"11025 to 16k", 11025, 16000, 220, 100},
		{"24k to 16k", 24000, 16000, 480, 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resampler := NewResampler(tc.from, tc.to)

			// A ramp makes repeated or skipped input samples visible.
			var got []float32
			next := 0
			for b := 0; b < tc.blocks; b++ {
				block := make([]float32, tc.block)
				for i := range block {
					block[i] = float32(next)
					next++
				}
				got = append(got, resampler.Process(block)...)
			}

			total := tc.block * tc.blocks
			want := (total-1)*tc.to/tc.from + 1
			if len(got) != want {
				t.Fatalf("Expected %d output samples for %d inputs, got %d", want, total, len(got))
			}

			step := float64(tc.from) / float64(tc.to)
			for i, v := range got {
				if d := float64(v) - float64(i)*step; d > 0.01 || d < -0.01 {
					t.Fatalf("Sample %d: expected %f, got %f", i, float64(i)*step, v)
				}
			}
		})
	}
}

func TestResamplerSameRate(t *testing.T) {
	in := []float32{0.1, 0.2}
	if got := NewResampler(16000, 16000).Process(in); len(got) != 2 || got[1] != 0.2 {
		t.Errorf("Expected passthrough, got %v", got)
	}
}

func TestRemix(t *testing.T) {
	mono := Frame{SampleRate: 24000, Channels: 1, Samples: []float32{0.5, -0.5}}
	stereo := Remix(mono, 2)
	if stereo.Channels != 2 || len(stereo.Samples) != 4 {
		t.Fatalf("Unexpected stereo frame %+v", stereo)
	}
	if stereo.Samples[0] != 0.5 || stereo.Samples[1] != 0.5 || stereo.Samples[3] != -0.5 {
		t.Errorf("Unexpected upmix %v", stereo.Samples)
	}

	down := Remix(Frame{SampleRate: 24000, Channels: 2, Samples: []float32{1, 0}}, 1)
	if down.Samples[0] != 0.5 {
		t.Errorf("Expected averaged downmix 0.5, got %f", down.Samples[0])
	}
}

func TestConvert(t *testing.T) {
	frame := Frame{SampleRate: 24000, Channels: 1, Samples: make([]float32, 480)}
	got := Convert(frame, 8000, 2)
	if got.SampleRate != 8000 || got.Channels != 2 || got.Len() != 160 {
		t.Errorf("Unexpected converted frame: rate=%d channels=%d len=%d", got.SampleRate, got.Channels, got.Len())
	}
	if got.Duration() != frame.Duration() {
		t.Errorf("Duration changed from %v to %v", frame.Duration(), got.Duration())
	}
}

func TestULawRoundTrip(t *testing.T) {
	pcm := Quantize([]float32{0, 0.25, -0.25, 0.9})
	ulaw, err := PCMToULaw(pcm)
	if err != nil {
		t.Fatalf("PCMToULaw failed: %v", err)
	}
	if len(ulaw) != len(pcm)/2 {
		t.Fatalf("Expected %d ulaw bytes, got %d", len(pcm)/2, len(ulaw))
	}

	samples, err := DecodeSamples(ulaw, EncodingULaw)
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}
	if samples[1] < 0.2 || samples[1] > 0.3 {
		t.Errorf("Companded sample drifted too far: %f", samples[1])
	}

	if _, err := PCMToULaw([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd PCM length")
	}

	raw, err := EncodeSamples(pcm, EncodingS16LE)
	if err != nil || !bytes.Equal(raw, pcm) {
		t.Error("s16le encoding should pass PCM through unchanged")
	}
}
