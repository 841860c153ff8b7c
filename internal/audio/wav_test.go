package audio

import (
	"math"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine generates a 440Hz tone of the given length
func sine(n, sampleRate int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440*t))
	}
	return samples
}

func TestEncodeWAV(t *testing.T) {
	samples := sine(800, 8000)

	data, err := EncodeWAV(samples, 8000)
	require.NoError(t, err)

	// 44 byte header plus 2 bytes per sample
	assert.Len(t, data, 44+len(samples)*2)
	assert.True(t, IsWAV(data))
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	_, err := EncodeWAV(nil, 8000)
	assert.Error(t, err)

	_, err = EncodeWAV([]int16{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sine(1600, 16000)

	data, err := EncodeWAV(samples, 16000)
	require.NoError(t, err)

	pcm, err := DecodeWAV(data)
	require.NoError(t, err)

	assert.Equal(t, 16000, pcm.SampleRate)
	assert.Equal(t, samples, pcm.Samples)
	assert.Equal(t, 100*time.Millisecond, pcm.Duration())
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	out := &memFile{}
	enc := wav.NewEncoder(out, 8000, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           []int{100, 300, -200, -400, 0, 10},
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())

	pcm, err := DecodeWAV(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []int16{200, -300, 5}, pcm.Samples)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"not riff", []byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00\x00\x00")},
		{"riff without fmt", append([]byte("RIFF\x04\x00\x00\x00WAVE"), make([]byte, 8)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestTo16Bit(t *testing.T) {
	assert.Equal(t, 0, to16Bit(128, 8))
	assert.Equal(t, -32768, to16Bit(0, 8))
	assert.Equal(t, 1000, to16Bit(1000, 16))
	assert.Equal(t, 1, to16Bit(256, 24))
	assert.Equal(t, 1, to16Bit(65536, 32))
}

func TestMemFileSeekAndOverwrite(t *testing.T) {
	m := &memFile{}
	_, err := m.Write([]byte("abcdef"))
	require.NoError(t, err)

	pos, err := m.Seek(2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	_, err = m.Write([]byte("XY"))
	require.NoError(t, err)
	assert.Equal(t, "abXYef", string(m.Bytes()))

	_, err = m.Seek(-10, 1)
	assert.Error(t, err)
}
