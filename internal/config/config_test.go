package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes validation
func validConfig() Config {
	cfg := Default()
	cfg.Telegram.Token = "123:abc"
	cfg.Transcription.APIKey = "test-key"
	return cfg
}

func TestDefaultNeedsOnlySecrets(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token cannot be empty")

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "zero active users",
			mutate:   func(c *Config) { c.Dispatch.MaxActiveUsers = 0 },
			errorMsg: "max_active_users must be at least 1",
		},
		{
			name: "http enabled without port",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 0
			},
			errorMsg: "http port must be between 1 and 65535",
		},
		{
			name:     "segment threshold too small",
			mutate:   func(c *Config) { c.Audio.MaxSegmentDurationMs = 10 },
			errorMsg: "max_segment_duration_ms must be at least 1000",
		},
		{
			name:     "unsupported sample rate",
			mutate:   func(c *Config) { c.Audio.SampleRate = 4000 },
			errorMsg: "sample_rate must be between 8000 and 48000",
		},
		{
			name:     "vad threshold out of range",
			mutate:   func(c *Config) { c.VAD.Threshold = 1.5 },
			errorMsg: "threshold must be between 0 and 1",
		},
		{
			name: "vad disabled skips checks",
			mutate: func(c *Config) {
				c.VAD.Enabled = false
				c.VAD.Threshold = 7
			},
		},
		{
			name:     "unknown provider",
			mutate:   func(c *Config) { c.Transcription.Provider = "deepspeech" },
			errorMsg: "provider must be 'whisper' or 'http'",
		},
		{
			name:     "missing api key",
			mutate:   func(c *Config) { c.Transcription.APIKey = "" },
			errorMsg: "api_key cannot be empty",
		},
		{
			name:     "storage port out of range",
			mutate:   func(c *Config) { c.Storage.Port = 70000 },
			errorMsg: "port must be between 1 and 65535",
		},
		{
			name:     "storage scheme",
			mutate:   func(c *Config) { c.Storage.Scheme = "ftp" },
			errorMsg: "scheme must be 'http' or 'https'",
		},
		{
			name: "duplicate language label",
			mutate: func(c *Config) {
				c.Dialog.Languages = append(c.Dialog.Languages, LanguageOption{Label: "українська", Tag: "uk-UA"})
			},
			errorMsg: "duplicate language label",
		},
		{
			name:     "no greetings",
			mutate:   func(c *Config) { c.Dialog.Greetings = nil },
			errorMsg: "at least one greeting keyword",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBotToken:         "999:env",
		EnvAdminChatID:      "-100123",
		EnvTranscriptionKey: "env-key",
		EnvStorageHost:      "records.internal",
		EnvStoragePort:      "8081",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "999:env", cfg.Telegram.Token)
	assert.Equal(t, int64(-100123), cfg.Telegram.AdminChatID)
	assert.Equal(t, "env-key", cfg.Transcription.APIKey)
	assert.Equal(t, "records.internal", cfg.Storage.Host)
	assert.Equal(t, 8081, cfg.Storage.Port)
	assert.Equal(t, "http://records.internal:8081", cfg.Storage.BaseURL())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == EnvStoragePort {
			return "not-a-port", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvStoragePort)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
telegram:
  token: "from-file"
  poll_timeout: 30
audio:
  max_segment_duration_ms: 30000
transcription:
  provider: http
  endpoint: "http://localhost:9000/transcribe"
  api_key: "file-key"
dialog:
  default_language: en-US
  languages:
    - label: english
      tag: en-US
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("STORAGE_PORT=6000\n"), 0o644))
	t.Setenv(EnvBotToken, "from-env")
	t.Setenv(EnvStoragePort, "")
	os.Unsetenv(EnvStoragePort)

	cfg, err := Load(path, envPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, 30*time.Second, cfg.Telegram.GetPollTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Audio.GetMaxSegmentDuration())
	assert.Equal(t, "http", cfg.Transcription.Provider)
	assert.Equal(t, 6000, cfg.Storage.Port)
	assert.Equal(t, "en-US", cfg.Dialog.DefaultLanguage)
	require.Len(t, cfg.Dialog.Languages, 1)
	// defaults survive partial files
	assert.Equal(t, 1024, cfg.Dialog.MaxCaptionLength)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 58*time.Second, cfg.Audio.GetMaxSegmentDuration())
	assert.Equal(t, time.Minute, cfg.Audio.GetConvertTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Transcription.GetTimeoutDuration())
	assert.Equal(t, 15*time.Second, cfg.Storage.GetTimeoutDuration())
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.GetEventTimeoutDuration())
}
