package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	audioFormatPCM        = 1
	audioFormatExtensible = 0xFFFE
	bitDepth16            = 16
)

// PCM is mono 16-bit linear audio
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the audio
func (p *PCM) Duration() time.Duration {
	return samplesToDuration(len(p.Samples), p.SampleRate)
}

// samplesToDuration converts a sample count to a duration without accumulating rounding error
func samplesToDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes a PCM WAV file into mono 16-bit samples.
// Multi-channel input is downmixed by averaging channels.
func DecodeWAV(data []byte) (*PCM, error) {
	if !IsWAV(data) {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %v", dec.Err())
	}

	if dec.WavAudioFormat != audioFormatPCM && dec.WavAudioFormat != audioFormatExtensible {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate in WAV header")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += to16Bit(buf.Data[i*channels+ch], buf.SourceBitDepth)
		}
		samples[i] = int16(sum / channels)
	}

	return &PCM{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// to16Bit rescales a sample of the given bit depth to the int16 range
func to16Bit(v, depth int) int {
	switch depth {
	case 8:
		return (v - 128) << 8
	case 24:
		return v >> 8
	case 32:
		return v >> 16
	default:
		return v
	}
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth16, 1, audioFormatPCM)
	if err := enc.Write(&goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth16,
	}); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return out.Bytes(), nil
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch sizes
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.buf
}
