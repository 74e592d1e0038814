package audio

// Resample converts interleaved samples between rates with linear
// interpolation. Output length is len/channels*to/from frames.
func Resample(samples []float32, channels, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || channels <= 0 || len(samples) == 0 {
		return samples
	}

	inFrames := len(samples) / channels
	outFrames := inFrames * to / from
	out := make([]float32, outFrames*channels)

	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next >= inFrames {
			next = inFrames - 1
		}
		for ch := 0; ch < channels; ch++ {
			a := samples[idx*channels+ch]
			b := samples[next*channels+ch]
			out[i*channels+ch] = a + (b-a)*frac
		}
	}

	return out
}

// Remix converts a frame to the requested channel count. Downmixing
// averages the source channels; upmixing copies the mono signal (or the
// average of the source channels) into every output channel.
func Remix(frame Frame, channels int) Frame {
	if channels <= 0 || frame.Channels <= 0 || frame.Channels == channels {
		return frame
	}

	frames := frame.Len()
	out := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < frame.Channels; ch++ {
			sum += frame.Samples[i*frame.Channels+ch]
		}
		mono := sum / float32(frame.Channels)
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = mono
		}
	}

	return Frame{SampleRate: frame.SampleRate, Channels: channels, Samples: out}
}

// Convert brings a frame to the target rate and channel layout.
func Convert(frame Frame, sampleRate, channels int) Frame {
	frame = Remix(frame, channels)
	if sampleRate > 0 && frame.SampleRate != sampleRate {
		frame = Frame{
			SampleRate: sampleRate,
			Channels:   frame.Channels,
			Samples:    Resample(frame.Samples, frame.Channels, frame.SampleRate, sampleRate),
		}
	}
	return frame
}

// Resampler converts a mono stream between rates with linear
// interpolation. Phase and the last input sample carry over between
// Process calls, so consecutive blocks join without repeated or lost
// samples. Output lags input by at most one sample.
type Resampler struct {
	from, to int

	// pos is the next output position in units of 1/to input samples,
	// relative to prev.
	pos    int64
	prev   float32
	primed bool
}

// NewResampler creates a stream resampler from one rate to another.
func NewResampler(from, to int) *Resampler {
	return &Resampler{from: from, to: to}
}

// Process consumes samples and returns the output they complete.
func (r *Resampler) Process(samples []float32) []float32 {
	if r.from == r.to || r.from <= 0 || r.to <= 0 || len(samples) == 0 {
		return samples
	}

	offset := 0
	if r.primed {
		offset = 1
	}
	at := func(i int) float32 {
		if i < offset {
			return r.prev
		}
		return samples[i-offset]
	}

	n := len(samples) + offset
	from, to := int64(r.from), int64(r.to)
	last := int64(n-1) * to

	out := make([]float32, 0, int((last-r.pos)/from)+1)
	for ; r.pos <= last; r.pos += from {
		idx := int(r.pos / to)
		a := at(idx)
		if rem := r.pos % to; rem != 0 {
			b := at(idx + 1)
			a += (b - a) * float32(float64(rem)/float64(to))
		}
		out = append(out, a)
	}

	r.pos -= last
	r.prev = samples[len(samples)-1]
	r.primed = true
	return out
}
