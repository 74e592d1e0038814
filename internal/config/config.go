package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talupulahemanth/voiceassist/internal/audio"
	"github.com/talupulahemanth/voiceassist/internal/live"
)

// Config represents the complete assistant configuration
type Config struct {
	Live        LiveConfig        `yaml:"live"`
	Assistant   AssistantConfig   `yaml:"assistant"`
	Audio       AudioConfig       `yaml:"audio"`
	Devices     DevicesConfig     `yaml:"devices"`
	HTTP        HTTPConfig        `yaml:"http"`
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LiveConfig contains the remote live API connection settings
type LiveConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	EventBuffer int    `yaml:"event_buffer"`
}

// AudioConfig contains capture and playback parameters
type AudioConfig struct {
	InputRate      int     `yaml:"input_rate"`
	OutputRate     int     `yaml:"output_rate"`
	WindowSize     int     `yaml:"window_size"`
	Gain           float64 `yaml:"gain"`
	OutboundBuffer int     `yaml:"outbound_buffer"`
	RenderPeriodMs int     `yaml:"render_period_ms"`
}

// DevicesConfig selects the microphone and speaker
type DevicesConfig struct {
	Microphone  MicrophoneConfig  `yaml:"microphone"`
	Speaker     SpeakerConfig     `yaml:"speaker"`
	AudioSocket AudioSocketConfig `yaml:"audiosocket"`
}

// MicrophoneConfig describes the input device
type MicrophoneConfig struct {
	Type     string `yaml:"type"` // stdin, file, wav or audiosocket
	Path     string `yaml:"path"`
	Rate     int    `yaml:"rate"`
	Encoding string `yaml:"encoding"`
	Loop     bool   `yaml:"loop"`
}

// SpeakerConfig describes the output device
type SpeakerConfig struct {
	Type     string `yaml:"type"` // stdout, file, audiosocket or discard
	Path     string `yaml:"path"`
	Rate     int    `yaml:"rate"`
	Channels int    `yaml:"channels"`
	Encoding string `yaml:"encoding"`
}

// AudioSocketConfig contains the Asterisk AudioSocket listener settings
type AudioSocketConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Console bool   `yaml:"console"`
}

// TranscriptsConfig controls transcript persistence
type TranscriptsConfig struct {
	Enabled   bool        `yaml:"enabled"`
	Dir       string      `yaml:"dir"`
	QueueSize int         `yaml:"queue_size"`
	TimeoutMs int         `yaml:"timeout_ms"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig contains the transcript Redis store settings
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that runs against stdin/stdout.
func Default() *Config {
	return &Config{
		Live: LiveConfig{
			URL:         live.DefaultURL,
			APIKey:      "${GEMINI_API_KEY}",
			Model:       live.DefaultModel,
			EventBuffer: live.DefaultEventBuffer,
		},
		Assistant: AssistantConfig{
			Voice:    DefaultVoice,
			Language: DefaultLanguage,
			Captions: true,
		},
		Audio: AudioConfig{
			InputRate:      audio.InputSampleRate,
			OutputRate:     audio.OutputSampleRate,
			WindowSize:     audio.DefaultWindowSize,
			Gain:           audio.DefaultLoudnessGain,
			OutboundBuffer: 4,
			RenderPeriodMs: 20,
		},
		Devices: DevicesConfig{
			Microphone:  MicrophoneConfig{Type: "stdin", Rate: audio.InputSampleRate, Encoding: audio.EncodingS16LE},
			Speaker:     SpeakerConfig{Type: "stdout", Rate: audio.OutputSampleRate, Channels: 1, Encoding: audio.EncodingS16LE},
			AudioSocket: AudioSocketConfig{Host: "0.0.0.0", Port: 9092},
		},
		HTTP: HTTPConfig{Enabled: true, Address: "127.0.0.1", Port: 8080},
		Transcripts: TranscriptsConfig{
			Dir:       "./transcripts",
			QueueSize: 64,
			TimeoutMs: 800,
			Redis:     RedisConfig{Addr: "localhost:6379", Prefix: "voiceassist:transcript:"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load reads .env (when present) and the configuration file, expands
// ${VAR} references and validates the result. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	config.Live.APIKey = os.ExpandEnv(config.Live.APIKey)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Devices.Validate(); err != nil {
		return fmt.Errorf("devices config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Transcripts.Validate(); err != nil {
		return fmt.Errorf("transcripts config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates the live API settings. A missing API key is reported
// when a session starts, not here.
func (l *LiveConfig) Validate() error {
	if l.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if l.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", l.EventBuffer)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.InputRate < 8000 {
		return fmt.Errorf("input_rate must be at least 8000 Hz, got %d", a.InputRate)
	}
	if a.OutputRate < 8000 {
		return fmt.Errorf("output_rate must be at least 8000 Hz, got %d", a.OutputRate)
	}
	if a.WindowSize < 256 {
		return fmt.Errorf("window_size must be at least 256 samples, got %d", a.WindowSize)
	}
	if a.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", a.Gain)
	}
	if a.OutboundBuffer < 1 {
		return fmt.Errorf("outbound_buffer must be at least 1, got %d", a.OutboundBuffer)
	}
	if a.RenderPeriodMs < 5 || a.RenderPeriodMs > 200 {
		return fmt.Errorf("render_period_ms must be between 5 and 200, got %d", a.RenderPeriodMs)
	}
	return nil
}

// RenderPeriod returns the output render cadence as a time.Duration
func (a *AudioConfig) RenderPeriod() time.Duration {
	return time.Duration(a.RenderPeriodMs) * time.Millisecond
}

// Validate validates device selection
func (d *DevicesConfig) Validate() error {
	m := d.Microphone
	switch m.Type {
	case "stdin":
	case "file", "wav":
		if m.Path == "" {
			return fmt.Errorf("microphone path cannot be empty for type %q", m.Type)
		}
	case "audiosocket":
	default:
		return fmt.Errorf("microphone type must be one of [stdin, file, wav, audiosocket], got '%s'", m.Type)
	}
	if m.Type != "wav" && m.Type != "audiosocket" && m.Rate < 8000 {
		return fmt.Errorf("microphone rate must be at least 8000 Hz, got %d", m.Rate)
	}
	if err := validateEncoding(m.Encoding); err != nil {
		return fmt.Errorf("microphone %w", err)
	}

	s := d.Speaker
	switch s.Type {
	case "stdout", "discard", "audiosocket":
	case "file":
		if s.Path == "" {
			return fmt.Errorf("speaker path cannot be empty for type file")
		}
	default:
		return fmt.Errorf("speaker type must be one of [stdout, file, audiosocket, discard], got '%s'", s.Type)
	}
	if s.Type != "audiosocket" {
		if s.Rate < 8000 {
			return fmt.Errorf("speaker rate must be at least 8000 Hz, got %d", s.Rate)
		}
		if s.Channels < 1 || s.Channels > 2 {
			return fmt.Errorf("speaker channels must be 1 or 2, got %d", s.Channels)
		}
	}
	if err := validateEncoding(s.Encoding); err != nil {
		return fmt.Errorf("speaker %w", err)
	}

	if m.Type == "audiosocket" || s.Type == "audiosocket" {
		if d.AudioSocket.Port < 1 || d.AudioSocket.Port > 65535 {
			return fmt.Errorf("audiosocket port must be between 1 and 65535, got %d", d.AudioSocket.Port)
		}
	}
	return nil
}

func validateEncoding(encoding string) error {
	switch encoding {
	case "", audio.EncodingS16LE, audio.EncodingULaw:
		return nil
	}
	return fmt.Errorf("encoding must be '%s' or '%s', got '%s'", audio.EncodingS16LE, audio.EncodingULaw, encoding)
}

// Addr returns the AudioSocket listen address
func (a *AudioSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// Validate validates transcript persistence settings
func (t *TranscriptsConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", t.QueueSize)
	}
	if t.TimeoutMs < 1 {
		return fmt.Errorf("timeout_ms must be at least 1, got %d", t.TimeoutMs)
	}
	if t.Dir == "" && !t.Redis.Enabled {
		return fmt.Errorf("either dir or redis must be configured")
	}
	if t.Redis.Enabled {
		if t.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty")
		}
		if t.Redis.TTLSeconds < 0 {
			return fmt.Errorf("redis ttl_seconds cannot be negative, got %d", t.Redis.TTLSeconds)
		}
	}
	return nil
}

// Timeout returns the per-write storage timeout
func (t *TranscriptsConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// TTL returns the Redis key expiry
func (r *RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}
