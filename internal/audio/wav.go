package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WAV holds the PCM payload of a 16-bit WAV file.
type WAV struct {
	SampleRate int
	Channels   int
	Data       []byte
}

// LoadWAV reads a WAV file from disk.
func LoadWAV(path string) (*WAV, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadWAV(file)
}

// ReadWAV walks the RIFF chunks and returns the fmt parameters together
// with the raw data chunk. Only 16-bit integer PCM is accepted.
func ReadWAV(r io.Reader) (*WAV, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	wav := &WAV{}
	haveFormat := false
	chunkHeader := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			return nil, fmt.Errorf("data chunk not found: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(body))
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d (only PCM)", format)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d (only 16-bit)", bits)
			}
			wav.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			wav.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("failed to read data chunk: %w", err)
			}
			wav.Data = data
			return wav, nil

		default:
			// RIFF chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
		if id == "fmt " && size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, err
			}
		}
	}
}

// Frame decodes the WAV payload into normalized samples.
func (w *WAV) Frame() (Frame, error) {
	return DecodeAudioData(w.Data, w.SampleRate, w.Channels)
}

// EncodeWAV wraps 16-bit PCM in a canonical 44 byte WAV header.
func EncodeWAV(pcm []byte, channels, sampleRate int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
