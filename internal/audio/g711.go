package audio

import (
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// Sample encodings accepted by byte-oriented devices.
const (
	EncodingS16LE = "s16le"
	EncodingULaw  = "ulaw"
)

// PCMToULaw converts 16-bit PCM bytes to G.711 mu-law.
func PCMToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawToPCM converts G.711 mu-law bytes to 16-bit PCM bytes.
func ULawToPCM(ulaw []byte) []byte {
	return g711.DecodeUlaw(ulaw)
}

// BytesPerSample returns the encoded size of one sample.
func BytesPerSample(encoding string) int {
	if encoding == EncodingULaw {
		return 1
	}
	return 2
}

// DecodeSamples turns device bytes into normalized samples.
func DecodeSamples(data []byte, encoding string) ([]float32, error) {
	if encoding == EncodingULaw {
		data = ULawToPCM(data)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd pcm length %d", len(data))
	}
	return pcmSamples(data), nil
}

// EncodeSamples turns 16-bit PCM into device bytes.
func EncodeSamples(pcm []byte, encoding string) ([]byte, error) {
	if encoding == EncodingULaw {
		return PCMToULaw(pcm)
	}
	return pcm, nil
}
