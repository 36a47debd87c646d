package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const DefaultPath = "config/bylawvoice.json"

type AppConfig struct {
	Logging  LoggingConfig  `json:"logging"`
	Speech   SpeechConfig   `json:"speech"`
	Playback PlaybackConfig `json:"playback"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SpeechConfig describes the remote speech-synthesis endpoint.
type SpeechConfig struct {
	Endpoint              string `json:"endpoint"`
	SourceSampleRate      int    `json:"source_sample_rate"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// PlaybackConfig describes the local audio output.
// Backend selects the device implementation: "portaudio" (default, callback
// driven, device rate queried at open) or "oto" (pull driven, SampleRate used
// as the device rate).
type PlaybackConfig struct {
	Backend         string `json:"backend"`
	SampleRate      int    `json:"sample_rate"`
	FramesPerBuffer int    `json:"frames_per_buffer"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Speech: SpeechConfig{
			Endpoint:              "http://localhost:5000/tts-stream",
			SourceSampleRate:      24000,
			RequestTimeoutSeconds: 0,
		},
		Playback: PlaybackConfig{
			Backend:         "portaudio",
			SampleRate:      44100,
			FramesPerBuffer: 1024,
		},
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
	if endpoint := strings.TrimSpace(os.Getenv("SPEECH_ENDPOINT")); endpoint != "" {
		c.Speech.Endpoint = endpoint
	}
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Speech.Endpoint) == "" {
		return errors.New("speech.endpoint is required")
	}
	if c.Speech.SourceSampleRate <= 0 {
		return errors.New("speech.source_sample_rate must be positive")
	}
	if c.Speech.RequestTimeoutSeconds < 0 {
		return errors.New("speech.request_timeout_seconds must be non-negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Playback.Backend)) {
	case "portaudio", "oto":
	default:
		return fmt.Errorf("invalid playback.backend: %s", c.Playback.Backend)
	}
	if c.Playback.SampleRate <= 0 {
		return errors.New("playback.sample_rate must be positive")
	}
	if c.Playback.FramesPerBuffer <= 0 {
		return errors.New("playback.frames_per_buffer must be positive")
	}

	return nil
}
