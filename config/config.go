// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Storage  StorageConfig  `yaml:"storage"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AudioConfig selects and tunes the capture source
type AudioConfig struct {
	Source        string        `yaml:"source"` // "device", "simulated" or "file"
	File          string        `yaml:"file"`   // WAV replayed when source is "file"
	DeviceID      int           `yaml:"device_id"`
	SampleRate    int           `yaml:"sample_rate"` // 0 = device native rate
	ChunkDuration time.Duration `yaml:"chunk_duration"`
	QueueSize     int           `yaml:"queue_size"`
}

// PipelineConfig tunes accumulation and dispatch
type PipelineConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// GeminiConfig contains remote service configuration
type GeminiConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StorageConfig locates persisted transcripts
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// HTTPConfig contains the UI API server configuration
type HTTPConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Source:        "device",
			ChunkDuration: 100 * time.Millisecond,
			QueueSize:     256,
		},
		Pipeline: PipelineConfig{
			FlushInterval: 2 * time.Second,
			QueueSize:     16,
		},
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Storage: StorageConfig{
			Dir: defaultDataDir(),
		},
		HTTP: HTTPConfig{
			Addr: ":8444",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "trascrivi-data"
	}
	return filepath.Join(dir, "trascrivi-ai")
}

// Load reads the configuration file on top of the defaults. An empty path
// yields the validated defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage config: dir cannot be empty")
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.Source {
	case "device", "simulated":
	case "file":
		if a.File == "" {
			return fmt.Errorf("file is required when source is 'file'")
		}
	default:
		return fmt.Errorf("source must be 'device', 'simulated' or 'file', got '%s'", a.Source)
	}
	if a.DeviceID < 0 {
		return fmt.Errorf("device_id cannot be negative, got %d", a.DeviceID)
	}
	if a.SampleRate < 0 {
		return fmt.Errorf("sample_rate cannot be negative, got %d", a.SampleRate)
	}
	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %s", a.ChunkDuration)
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}
	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", p.FlushInterval)
	}
	if p.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", p.QueueSize)
	}
	return nil
}

// Validate validates remote service configuration. The API key is optional
// here because it can also be set at runtime.
func (g *GeminiConfig) Validate() error {
	if g.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if g.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1s, got %s", g.Timeout)
	}
	if g.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", g.MaxRetries)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if (h.CertFile == "") != (h.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// SlogLevel returns the configured level as a slog.Level.
func (l *LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TLS reports whether the HTTP server should serve TLS.
func (h *HTTPConfig) TLS() bool {
	return h.CertFile != "" && h.KeyFile != ""
}
