package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSpeech is returned by a recognizer that produced no text for a segment
var ErrNoSpeech = errors.New("no speech recognized")

// Recognizer converts one encoded audio segment into text.
// languageTag is a locale such as "uk-UA".
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, format, languageTag string) (string, error)
}

// StatusError is a non-2xx response from a recognition endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed when repeated
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// LanguageCode returns the ISO-639-1 part of a locale tag ("uk-UA" -> "uk")
func LanguageCode(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
