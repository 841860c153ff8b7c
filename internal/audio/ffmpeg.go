package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpegConverter converts OGG/Opus, MP3, M4A and other containers to PCM
// by running an external ffmpeg process
type FFmpegConverter struct {
	path       string
	sampleRate int
	timeout    time.Duration
}

// NewFFmpegConverter creates a converter that resamples to sampleRate.
// It fails when the ffmpeg binary cannot be found.
func NewFFmpegConverter(path string, sampleRate int, timeout time.Duration) (*FFmpegConverter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found at %q: %w", path, err)
	}

	return &FFmpegConverter{
		path:       resolved,
		sampleRate: sampleRate,
		timeout:    timeout,
	}, nil
}

// ToPCM pipes data through ffmpeg and reads back raw s16le mono samples
func (f *FFmpegConverter) ToPCM(ctx context.Context, data []byte) (*PCM, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(f.sampleRate),
		"-acodec", "pcm_s16le",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	return &PCM{
		Samples:    parseS16LE(stdout.Bytes()),
		SampleRate: f.sampleRate,
	}, nil
}

// parseS16LE converts little-endian 16-bit sample bytes; a trailing odd byte is dropped
func parseS16LE(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}
