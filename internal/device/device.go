// Package device provides the microphones and speaker sinks the assistant
// runs against: raw PCM streams, WAV files and AudioSocket calls.
package device

import (
	"context"
	"fmt"
	"time"
)

// DefaultBlock is how much audio a microphone delivers per read.
const DefaultBlock = 20 * time.Millisecond

// Microphone is a pushed source of mono samples.
type Microphone interface {
	// Open starts capture. The returned channel is closed when the device
	// ends or Close is called. Failures are *PermissionError.
	Open(ctx context.Context) (<-chan []float32, error)
	SampleRate() int
	Close() error
}

// PermissionError reports that a microphone could not be opened.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone %s unavailable: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

func blockSamples(rate int) int {
	n := int(int64(rate) * int64(DefaultBlock) / int64(time.Second))
	if n <= 0 {
		n = 1
	}
	return n
}
