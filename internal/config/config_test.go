package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("VOICEASSIST_TEST_KEY", "from-env")
	path := writeConfig(t, `
live:
  api_key: ${VOICEASSIST_TEST_KEY}
assistant:
  voice: kore
  language: es
devices:
  microphone:
    type: file
    path: /tmp/mic.pcm
    rate: 16000
logging:
  level: debug
  format: json
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if config.Live.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", config.Live.APIKey)
	}
	if config.Audio.WindowSize != 4096 || config.Audio.OutboundBuffer != 4 {
		t.Errorf("audio defaults lost: %+v", config.Audio)
	}
	if config.Devices.Microphone.Path != "/tmp/mic.pcm" {
		t.Errorf("microphone = %+v", config.Devices.Microphone)
	}
	if config.Logging.Format != "json" {
		t.Errorf("logging = %+v", config.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown voice", func(c *Config) { c.Assistant.Voice = "Nobody" }, "voice"},
		{"unknown language", func(c *Config) { c.Assistant.Language = "xx" }, "language"},
		{"bad prompt", func(c *Config) { c.Assistant.Prompt = "{{.Voice" }, "prompt"},
		{"small window", func(c *Config) { c.Audio.WindowSize = 10 }, "window_size"},
		{"zero buffer", func(c *Config) { c.Audio.OutboundBuffer = 0 }, "outbound_buffer"},
		{"wav without path", func(c *Config) { c.Devices.Microphone.Type = "wav" }, "path"},
		{"bad mic type", func(c *Config) { c.Devices.Microphone.Type = "alsa" }, "microphone type"},
		{"bad encoding", func(c *Config) { c.Devices.Speaker.Encoding = "alaw" }, "encoding"},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }, "port"},
		{"http disabled ignores port", func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 }, ""},
		{"transcripts without sink", func(c *Config) {
			c.Transcripts.Enabled = true
			c.Transcripts.Dir = ""
		}, "dir or redis"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	a := Default().Assistant

	english, err := a.SystemPrompt("Zephyr", "en")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if !strings.Contains(english, "Respond in English.") || !strings.Contains(english, "Your persona is Zephyr.") {
		t.Errorf("unexpected english prompt:\n%s", english)
	}

	spanish, err := a.SystemPrompt("charon", "ES")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if !strings.Contains(spanish, "TRANSLATE all responses to Spanish.") || !strings.Contains(spanish, "Charon") {
		t.Errorf("unexpected spanish prompt:\n%s", spanish)
	}

	if _, err := a.SystemPrompt("Nobody", "en"); err == nil {
		t.Error("expected error for unknown voice")
	}
}
