package transcription

import (
	"context"
	"fmt"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
)

// Pipeline turns a raw recording into a transcript
type Pipeline struct {
	chunker     *audio.Chunker
	transcriber *Transcriber
}

// NewPipeline combines a chunker and a transcriber
func NewPipeline(chunker *audio.Chunker, transcriber *Transcriber) (*Pipeline, error) {
	if chunker == nil || transcriber == nil {
		return nil, fmt.Errorf("chunker and transcriber are required")
	}

	return &Pipeline{chunker: chunker, transcriber: transcriber}, nil
}

// Run decodes, chunks and transcribes a recording. The only error it
// returns is an *audio.DecodeError; recognition failures are reported in
// the result.
func (p *Pipeline) Run(ctx context.Context, recording []byte, languageTag string) (*TranscriptResult, error) {
	segments, err := p.chunker.Chunk(ctx, recording)
	if err != nil {
		return nil, err
	}

	return p.transcriber.Transcribe(ctx, segments, languageTag), nil
}
