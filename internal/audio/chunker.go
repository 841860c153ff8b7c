package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

// DefaultMaxSegmentDuration keeps segments under the one-minute provider limit
const DefaultMaxSegmentDuration = 58 * time.Second

// Segment is a bounded-duration slice of a recording, encoded for recognition
type Segment struct {
	Index      int           `json:"index"`
	Data       []byte        `json:"-"` // WAV encoded
	PCM        []int16       `json:"-"`
	Format     string        `json:"format"`
	Offset     time.Duration `json:"offset"`
	Duration   time.Duration `json:"duration"`
	Samples    int           `json:"samples"`
	SampleRate int           `json:"sample_rate"`
}

// ChunkingConfig contains configuration for the chunking process
type ChunkingConfig struct {
	MaxDuration time.Duration
}

// Chunker decodes recordings and splits them into segments
type Chunker struct {
	config  ChunkingConfig
	decoder *Decoder
	metrics *metrics.Metrics

	// Statistics
	recordings    uint64
	decodeErrors  uint64
	chunksCreated uint64
	totalDuration time.Duration

	mu sync.RWMutex
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	Recordings    uint64        `json:"recordings"`
	DecodeErrors  uint64        `json:"decode_errors"`
	ChunksCreated uint64        `json:"chunks_created"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgChunkSize  float64       `json:"avg_chunk_duration_sec"`
}

// NewChunker creates a new audio chunker
func NewChunker(config ChunkingConfig, decoder *Decoder, m *metrics.Metrics) (*Chunker, error) {
	if config.MaxDuration <= 0 {
		config.MaxDuration = DefaultMaxSegmentDuration
	}

	if decoder == nil {
		return nil, fmt.Errorf("decoder cannot be nil")
	}

	return &Chunker{
		config:  config,
		decoder: decoder,
		metrics: m,
	}, nil
}

// Chunk decodes a recording and splits it into ordered, gapless segments.
// Undecodable input yields a *DecodeError.
func (c *Chunker) Chunk(ctx context.Context, data []byte) ([]Segment, error) {
	pcm, err := c.decoder.Decode(ctx, data)
	if err != nil {
		c.mu.Lock()
		c.recordings++
		c.decodeErrors++
		c.mu.Unlock()
		c.metrics.RecordDecodeError()
		return nil, err
	}

	segments, err := SplitPCM(pcm, c.config.MaxDuration)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.recordings++
	c.chunksCreated += uint64(len(segments))
	c.totalDuration += pcm.Duration()
	c.mu.Unlock()

	for _, s := range segments {
		c.metrics.RecordSegmentGenerated(s.Duration.Seconds(), len(s.Data))
	}

	return segments, nil
}

// SplitPCM cuts pcm into ceil(len/max) WAV segments. Segment durations are
// computed from sample boundaries so they sum exactly to the input duration.
// Empty input yields no segments.
func SplitPCM(pcm *PCM, maxDuration time.Duration) ([]Segment, error) {
	if pcm == nil || len(pcm.Samples) == 0 {
		return nil, nil
	}

	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", pcm.SampleRate)
	}

	maxSamples := int(int64(maxDuration) * int64(pcm.SampleRate) / int64(time.Second))
	if maxSamples < 1 {
		return nil, fmt.Errorf("max segment duration %v is shorter than one sample", maxDuration)
	}

	total := len(pcm.Samples)
	count := (total + maxSamples - 1) / maxSamples
	segments := make([]Segment, 0, count)

	for i := 0; i < count; i++ {
		start := i * maxSamples
		end := start + maxSamples
		if end > total {
			end = total
		}

		data, err := EncodeWAV(pcm.Samples[start:end], pcm.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to encode segment %d: %w", i, err)
		}

		startAt := samplesToDuration(start, pcm.SampleRate)
		segments = append(segments, Segment{
			Index:      i,
			Data:       data,
			PCM:        pcm.Samples[start:end],
			Format:     "wav",
			Offset:     startAt,
			Duration:   samplesToDuration(end, pcm.SampleRate) - startAt,
			Samples:    end - start,
			SampleRate: pcm.SampleRate,
		})
	}

	return segments, nil
}

// GetStats returns chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := ChunkerStats{
		Recordings:    c.recordings,
		DecodeErrors:  c.decodeErrors,
		ChunksCreated: c.chunksCreated,
		TotalDuration: c.totalDuration,
	}

	if c.chunksCreated > 0 {
		stats.AvgChunkSize = c.totalDuration.Seconds() / float64(c.chunksCreated)
	}

	return stats
}
