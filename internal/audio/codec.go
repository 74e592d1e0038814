package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// PCM limits for signed 16-bit samples.
const (
	pcmMax   = 32767
	pcmMin   = -32768
	pcmScale = 32768.0
)

// DecodeError reports malformed transport text.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio chunk: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FormatError reports PCM bytes that do not fit the declared layout.
type FormatError struct {
	Length     int
	Channels   int
	SampleRate int
}

func (e *FormatError) Error() string {
	switch {
	case e.Channels <= 0:
		return fmt.Sprintf("invalid channel count %d", e.Channels)
	case e.SampleRate <= 0:
		return fmt.Sprintf("invalid sample rate %d", e.SampleRate)
	default:
		return fmt.Sprintf("pcm length %d is not a multiple of %d (%d channels of 16-bit samples)",
			e.Length, 2*e.Channels, e.Channels)
	}
}

// Encode converts raw bytes into transport text.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return data, nil
}

// DecodeAudioData interprets little-endian signed 16-bit PCM as normalized
// float samples grouped into the given channel count.
func DecodeAudioData(data []byte, sampleRate, channels int) (Frame, error) {
	if channels <= 0 || sampleRate <= 0 || len(data)%(2*channels) != 0 {
		return Frame{}, &FormatError{Length: len(data), Channels: channels, SampleRate: sampleRate}
	}

	return Frame{SampleRate: sampleRate, Channels: channels, Samples: pcmSamples(data)}, nil
}

func pcmSamples(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / pcmScale
	}
	return samples
}

// Quantize converts normalized samples to little-endian 16-bit PCM.
// Values outside the representable range saturate instead of wrapping.
func Quantize(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantizeSample(s)))
	}
	return out
}

func quantizeSample(s float32) int16 {
	v := math.Round(float64(s) * pcmScale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > pcmMax:
		return pcmMax
	case v < pcmMin:
		return pcmMin
	}
	return int16(v)
}

// EncodeFrame quantizes and encodes samples into a transport chunk.
func EncodeFrame(samples []float32, sampleRate int) Chunk {
	return Chunk{Data: Encode(Quantize(samples)), SampleRate: sampleRate}
}

// DecodeChunk decodes transport text straight into a frame.
func DecodeChunk(chunk Chunk, channels int) (Frame, error) {
	data, err := Decode(chunk.Data)
	if err != nil {
		return Frame{}, err
	}
	return DecodeAudioData(data, chunk.SampleRate, channels)
}
