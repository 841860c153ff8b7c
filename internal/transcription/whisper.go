package transcription

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultWhisperBaseURL is the OpenAI-compatible endpoint used when none is configured
const DefaultWhisperBaseURL = "https://api.groq.com/openai/v1"

// WhisperConfig contains OpenAI-compatible audio API settings
type WhisperConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// WhisperRecognizer recognizes speech through an OpenAI-compatible
// /audio/transcriptions endpoint
type WhisperRecognizer struct {
	client *openai.Client
	model  string
}

// NewWhisperRecognizer creates a recognizer for the given endpoint
func NewWhisperRecognizer(cfg WhisperConfig) (*WhisperRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultWhisperBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &WhisperRecognizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Recognize transcribes one segment
func (w *WhisperRecognizer) Recognize(ctx context.Context, audio []byte, format, languageTag string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "segment." + format,
		Reader:   bytes.NewReader(audio),
		Language: LanguageCode(languageTag),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}

	return text, nil
}
