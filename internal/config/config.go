package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets and endpoints from the YAML file
const (
	EnvBotToken         = "TELEGRAM_BOT_TOKEN"
	EnvAdminChatID      = "ADMIN_CHAT_ID"
	EnvTranscriptionKey = "TRANSCRIPTION_API_KEY"
	EnvStorageHost      = "STORAGE_HOST"
	EnvStoragePort      = "STORAGE_PORT"
)

// Config represents the complete service configuration
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	Dialog        DialogConfig        `yaml:"dialog"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// TelegramConfig contains Bot API connection settings
type TelegramConfig struct {
	Token       string `yaml:"token"`
	APIEndpoint string `yaml:"api_endpoint"`
	PollTimeout int    `yaml:"poll_timeout"` // seconds
	AdminChatID int64  `yaml:"admin_chat_id"`
	Debug       bool   `yaml:"debug"`
}

// DispatchConfig controls the per-user event queues
type DispatchConfig struct {
	MaxActiveUsers int `yaml:"max_active_users"`
	QueueSize      int `yaml:"queue_size"`    // per user
	EventTimeout   int `yaml:"event_timeout"` // seconds
}

// HTTPConfig contains admin API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains decoding and chunking parameters
type AudioConfig struct {
	MaxSegmentDurationMs int    `yaml:"max_segment_duration_ms"`
	SampleRate           int    `yaml:"sample_rate"`
	FFmpegPath           string `yaml:"ffmpeg_path"`
	ConvertTimeout       int    `yaml:"convert_timeout"` // seconds
}

// VADConfig contains the silence gate configuration
type VADConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Threshold     float32 `yaml:"threshold"`
	WindowSize    int     `yaml:"window_size"` // samples
	MinVoiceRatio float64 `yaml:"min_voice_ratio"`
}

// TranscriptionConfig contains recognition provider configuration
type TranscriptionConfig struct {
	Provider      string `yaml:"provider"` // "whisper" or "http"
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds, per segment
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	OutputFormat  string `yaml:"output_format"`
}

// StorageConfig contains record store connection settings
type StorageConfig struct {
	Scheme       string `yaml:"scheme"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Timeout      int    `yaml:"timeout"` // seconds
	KeepDeclined bool   `yaml:"keep_declined"`
}

// LanguageOption maps a keyboard label to a recognition locale
type LanguageOption struct {
	Label string `yaml:"label"`
	Tag   string `yaml:"tag"`
}

// DialogConfig contains conversation settings
type DialogConfig struct {
	DefaultLanguage  string           `yaml:"default_language"`
	MaxCaptionLength int              `yaml:"max_caption_length"`
	Languages        []LanguageOption `yaml:"languages"`
	Greetings        []string         `yaml:"greetings"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with every optional value filled in
func Default() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Dispatch: DispatchConfig{
			MaxActiveUsers: 1000,
			QueueSize:      16,
			EventTimeout:   300,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
		},
		Audio: AudioConfig{
			MaxSegmentDurationMs: 58000,
			SampleRate:           16000,
			FFmpegPath:           "ffmpeg",
			ConvertTimeout:       60,
		},
		VAD: VADConfig{
			Enabled:       true,
			Threshold:     0.01,
			WindowSize:    512,
			MinVoiceRatio: 0.02,
		},
		Transcription: TranscriptionConfig{
			Provider:      "whisper",
			Endpoint:      "https://api.groq.com/openai/v1",
			Model:         "whisper-large-v3",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 4,
			OutputFormat:  "json",
		},
		Storage: StorageConfig{
			Scheme:  "http",
			Host:    "localhost",
			Port:    5000,
			Timeout: 15,
		},
		Dialog: DialogConfig{
			DefaultLanguage:  "uk-UA",
			MaxCaptionLength: 1024,
			Languages: []LanguageOption{
				{Label: "українська", Tag: "uk-UA"},
				{Label: "російська", Tag: "ru-RU"},
				{Label: "англійська", Tag: "en-US"},
				{Label: "німецька", Tag: "de-DE"},
			},
			Greetings: []string{"hello", "привет", "hi", "ку", "вітаю", "привіт", "доброго"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file, seeds the environment from an optional
// .env file, applies environment overrides and validates the result
func Load(path string, envFiles ...string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadEnvFiles loads .env files without overriding variables already set.
// A missing file is not an error.
func loadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBotToken); ok && v != "" {
		c.Telegram.Token = v
	}

	if v, ok := lookup(EnvAdminChatID); ok && v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer chat id: %w", EnvAdminChatID, err)
		}
		c.Telegram.AdminChatID = id
	}

	if v, ok := lookup(EnvTranscriptionKey); ok && v != "" {
		c.Transcription.APIKey = v
	}

	if v, ok := lookup(EnvStorageHost); ok && v != "" {
		c.Storage.Host = v
	}

	if v, ok := lookup(EnvStoragePort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer port: %w", EnvStoragePort, err)
		}
		c.Storage.Port = port
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram config: %w", err)
	}

	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Dialog.Validate(); err != nil {
		return fmt.Errorf("dialog config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates Telegram configuration
func (t *TelegramConfig) Validate() error {
	if t.Token == "" {
		return fmt.Errorf("token cannot be empty (set %s)", EnvBotToken)
	}

	if t.PollTimeout < 1 {
		return fmt.Errorf("poll_timeout must be at least 1 second, got %d", t.PollTimeout)
	}

	return nil
}

// Validate validates dispatcher configuration
func (d *DispatchConfig) Validate() error {
	if d.MaxActiveUsers < 1 {
		return fmt.Errorf("max_active_users must be at least 1, got %d", d.MaxActiveUsers)
	}

	if d.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", d.QueueSize)
	}

	if d.EventTimeout < 1 {
		return fmt.Errorf("event_timeout must be at least 1 second, got %d", d.EventTimeout)
	}

	return nil
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

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxSegmentDurationMs < 1000 {
		return fmt.Errorf("max_segment_duration_ms must be at least 1000, got %d", a.MaxSegmentDurationMs)
	}

	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.FFmpegPath != "" && a.ConvertTimeout < 1 {
		return fmt.Errorf("convert_timeout must be at least 1 second, got %d", a.ConvertTimeout)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.MinVoiceRatio < 0 || v.MinVoiceRatio > 1 {
		return fmt.Errorf("min_voice_ratio must be between 0 and 1, got %f", v.MinVoiceRatio)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validProviders := map[string]bool{"whisper": true, "http": true}
	if !validProviders[t.Provider] {
		return fmt.Errorf("provider must be 'whisper' or 'http', got '%s'", t.Provider)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set %s)", EnvTranscriptionKey)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[t.OutputFormat] {
		return fmt.Errorf("output_format must be 'json' or 'text', got '%s'", t.OutputFormat)
	}

	return nil
}

// Validate validates record store configuration
func (s *StorageConfig) Validate() error {
	if s.Scheme != "http" && s.Scheme != "https" {
		return fmt.Errorf("scheme must be 'http' or 'https', got '%s'", s.Scheme)
	}

	if s.Host == "" {
		return fmt.Errorf("host cannot be empty (set %s)", EnvStorageHost)
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates dialog configuration
func (d *DialogConfig) Validate() error {
	if d.DefaultLanguage == "" {
		return fmt.Errorf("default_language cannot be empty")
	}

	if d.MaxCaptionLength < 1 {
		return fmt.Errorf("max_caption_length must be positive, got %d", d.MaxCaptionLength)
	}

	if len(d.Languages) == 0 {
		return fmt.Errorf("at least one language option is required")
	}

	seen := make(map[string]bool, len(d.Languages))
	for i, l := range d.Languages {
		if l.Label == "" || l.Tag == "" {
			return fmt.Errorf("languages[%d] needs both label and tag", i)
		}
		if seen[l.Label] {
			return fmt.Errorf("duplicate language label '%s'", l.Label)
		}
		seen[l.Label] = true
	}

	if len(d.Greetings) == 0 {
		return fmt.Errorf("at least one greeting keyword is required")
	}

	return nil
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

// GetPollTimeoutDuration returns the long-poll timeout as a time.Duration
func (t *TelegramConfig) GetPollTimeoutDuration() time.Duration {
	return time.Duration(t.PollTimeout) * time.Second
}

// GetEventTimeoutDuration returns the per-event processing budget
func (d *DispatchConfig) GetEventTimeoutDuration() time.Duration {
	return time.Duration(d.EventTimeout) * time.Second
}

// GetMaxSegmentDuration returns the chunking threshold as a time.Duration
func (a *AudioConfig) GetMaxSegmentDuration() time.Duration {
	return time.Duration(a.MaxSegmentDurationMs) * time.Millisecond
}

// GetConvertTimeoutDuration returns the ffmpeg conversion timeout
func (a *AudioConfig) GetConvertTimeoutDuration() time.Duration {
	return time.Duration(a.ConvertTimeout) * time.Second
}

// GetTimeoutDuration returns the per-segment recognition timeout
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the record store request timeout
func (s *StorageConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// BaseURL returns the record store base URL
func (s *StorageConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", s.Scheme, s.Host, s.Port)
}
