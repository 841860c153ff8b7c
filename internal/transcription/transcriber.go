package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/metrics"
	"github.com/skypro1111/voice-archive-bot/internal/vad"
)

// FailureReason classifies a segment that produced no text
type FailureReason string

const (
	ReasonTimeout       FailureReason = "timeout"
	ReasonCanceled      FailureReason = "canceled"
	ReasonNoSpeech      FailureReason = "no_speech"
	ReasonSilence       FailureReason = "silence"
	ReasonProviderError FailureReason = "provider_error"
)

// SegmentError is a soft, per-segment recognition failure. It is recorded
// in the outcomes and never aborts the recording.
type SegmentError struct {
	Index  int
	Reason FailureReason
	Err    error
}

func (e *SegmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segment %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("segment %d: %s", e.Index, e.Reason)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// SegmentOutcome is the result for one segment: text on success, Err otherwise
type SegmentOutcome struct {
	Index    int           `json:"index"`
	Text     string        `json:"text,omitempty"`
	Err      *SegmentError `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the segment produced text
func (o SegmentOutcome) OK() bool {
	return o.Err == nil
}

// TranscriptResult is the reassembled transcript of one recording
type TranscriptResult struct {
	Text      string           `json:"text"`
	Attempted int              `json:"attempted"`
	Failed    int              `json:"failed"`
	Outcomes  []SegmentOutcome `json:"outcomes"`
}

// Empty reports whether no segment produced text
func (r *TranscriptResult) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// TranscriberConfig controls per-segment recognition
type TranscriberConfig struct {
	SegmentTimeout time.Duration
	MaxConcurrent  int
}

// Transcriber recognizes segments in parallel and reassembles them in order
type Transcriber struct {
	recognizer Recognizer
	gate       *vad.Processor
	config     TranscriberConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	recordings      uint64
	segments        uint64
	failedSegments  uint64
	emptyRecordings uint64

	mu sync.RWMutex
}

// TranscriberStats represents transcriber statistics
type TranscriberStats struct {
	Recordings      uint64 `json:"recordings"`
	Segments        uint64 `json:"segments"`
	FailedSegments  uint64 `json:"failed_segments"`
	EmptyRecordings uint64 `json:"empty_recordings"`
}

// NewTranscriber creates a transcriber. gate may be nil to send every segment.
func NewTranscriber(logger *slog.Logger, recognizer Recognizer, gate *vad.Processor, config TranscriberConfig, m *metrics.Metrics) (*Transcriber, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("recognizer cannot be nil")
	}

	if config.SegmentTimeout <= 0 {
		config.SegmentTimeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Transcriber{
		recognizer: recognizer,
		gate:       gate,
		config:     config,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Transcribe recognizes every segment and joins the successful texts with a
// single space in segment order. Failed segments are logged and reported in
// the outcomes; the result is returned even when every segment failed.
func (t *Transcriber) Transcribe(ctx context.Context, segments []audio.Segment, languageTag string) *TranscriptResult {
	outcomes := make([]SegmentOutcome, len(segments))

	var g errgroup.Group
	g.SetLimit(t.config.MaxConcurrent)

	for i := range segments {
		seg := segments[i]
		g.Go(func() error {
			outcomes[i] = t.recognizeSegment(ctx, seg, languageTag)
			return nil
		})
	}
	_ = g.Wait()

	result := &TranscriptResult{
		Attempted: len(segments),
		Outcomes:  outcomes,
	}

	texts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			result.Failed++
			continue
		}
		texts = append(texts, o.Text)
	}
	result.Text = strings.Join(texts, " ")

	t.mu.Lock()
	t.recordings++
	t.segments += uint64(result.Attempted)
	t.failedSegments += uint64(result.Failed)
	if result.Empty() {
		t.emptyRecordings++
	}
	t.mu.Unlock()

	return result
}

// recognizeSegment runs the silence gate and one provider call under its own timeout
func (t *Transcriber) recognizeSegment(ctx context.Context, seg audio.Segment, languageTag string) SegmentOutcome {
	outcome := SegmentOutcome{Index: seg.Index}

	if t.gate != nil && len(seg.PCM) > 0 {
		if analysis := t.gate.Analyze(seg.PCM); !analysis.HasSpeech {
			t.metrics.RecordSilentSegment()
			outcome.Err = &SegmentError{Index: seg.Index, Reason: ReasonSilence}
			t.logger.Debug("Segment skipped by silence gate",
				slog.Int("segment", seg.Index),
				slog.Float64("voice_ratio", analysis.VoiceRatio),
			)
			return outcome
		}
	}

	segCtx, cancel := context.WithTimeout(ctx, t.config.SegmentTimeout)
	defer cancel()

	start := time.Now()
	t.metrics.RecordTranscriptionRequest()
	text, err := t.recognizer.Recognize(segCtx, seg.Data, seg.Format, languageTag)
	outcome.Duration = time.Since(start)

	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrNoSpeech
	}

	if err != nil {
		reason := classify(err)
		outcome.Err = &SegmentError{Index: seg.Index, Reason: reason, Err: err}
		t.metrics.RecordTranscriptionFailure(string(reason), outcome.Duration.Seconds())
		t.logger.Warn("Segment recognition failed",
			slog.Int("segment", seg.Index),
			slog.String("reason", string(reason)),
			slog.Duration("elapsed", outcome.Duration),
			slog.String("error", err.Error()),
		)
		return outcome
	}

	outcome.Text = strings.TrimSpace(text)
	t.metrics.RecordTranscriptionSuccess(outcome.Duration.Seconds())
	return outcome
}

func classify(err error) FailureReason {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return ReasonNoSpeech
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonProviderError
	}
}

// GetStats returns transcriber statistics
func (t *Transcriber) GetStats() TranscriberStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TranscriberStats{
		Recordings:      t.recordings,
		Segments:        t.segments,
		FailedSegments:  t.failedSegments,
		EmptyRecordings: t.emptyRecordings,
	}
}
