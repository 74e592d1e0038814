package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sample rates agreed with the remote service.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// Frame is a block of normalized PCM samples in [-1, 1]. Multi-channel
// audio is interleaved.
type Frame struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Len returns the number of sample frames (samples per channel).
func (f Frame) Len() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Len()) * time.Second / time.Duration(f.SampleRate)
}

// Chunk is the transport unit: base64 encoded little-endian 16-bit PCM
// tagged with its sample rate.
type Chunk struct {
	Data       string
	SampleRate int
}

// MIMEType renders the chunk format the way the live API expects it.
func (c Chunk) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}

// ParseRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000". It returns fallback when no rate is present.
func ParseRate(mimeType string, fallback int) int {
	for _, part := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		rate, err := strconv.Atoi(value)
		if err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}
