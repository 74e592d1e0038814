package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestReadWAV(t *testing.T) {
	pcm := Quantize([]float32{0, 0.5, -0.5, 0.25})
	wav, err := ReadWAV(bytes.NewReader(EncodeWAV(pcm, 1, 16000)))
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if wav.SampleRate != 16000 || wav.Channels != 1 {
		t.Errorf("Unexpected format: %d Hz, %d channels", wav.SampleRate, wav.Channels)
	}
	if !bytes.Equal(wav.Data, pcm) {
		t.Error("PCM payload mismatch")
	}

	frame, err := wav.Frame()
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if frame.Len() != 4 {
		t.Errorf("Expected 4 samples, got %d", frame.Len())
	}
}

func TestReadWAVSkipsUnknownChunks(t *testing.T) {
	pcm := Quantize([]float32{0.1, 0.2})
	data := EncodeWAV(pcm, 1, 8000)

	// Insert a LIST chunk with an odd size between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(append([]byte{}, data[:36]...), list...), data[36:]...)

	wav, err := ReadWAV(bytes.NewReader(withList))
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if !bytes.Equal(wav.Data, pcm) {
		t.Error("PCM payload mismatch after LIST chunk")
	}
}

func TestReadWAVInvalid(t *testing.T) {
	if _, err := ReadWAV(bytes.NewReader([]byte("RIFF0000WAVX"))); err == nil {
		t.Error("Expected error for non-WAVE file")
	}
	if _, err := ReadWAV(bytes.NewReader([]byte("RIF"))); err == nil {
		t.Error("Expected error for truncated header")
	}
}

func TestLoadWAV(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "tone.wav")
	if err := os.WriteFile(path, EncodeWAV(Quantize([]float32{0.3}), 1, 24000), 0644); err != nil {
		t.Fatalf("Failed to write wav: %v", err)
	}

	wav, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV failed: %v", err)
	}
	if wav.SampleRate != 24000 {
		t.Errorf("Expected 24000 Hz, got %d", wav.SampleRate)
	}

	if _, err := LoadWAV(filepath.Join(tempDir, "missing.wav")); err == nil {
		t.Error("Expected error when loading non-existent file")
	}
}
