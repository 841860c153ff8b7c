package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScale is the RMS of a full-scale 16-bit square wave
const fullScale = 32768.0

// Processor is an energy-based voice activity detector used as a silence
// gate in front of the recognition provider
type Processor struct {
	threshold     float32 // normalized RMS energy, 0.0 - 1.0
	windowSize    int     // samples per window
	minVoiceRatio float64 // voiced windows / total windows required for speech

	// Statistics
	totalWindows    uint64
	voiceWindows    uint64
	segmentsChecked uint64
	silentSegments  uint64
	lastProcessed   time.Time

	mu sync.RWMutex
}

// Analysis is the result of running the detector over one segment
type Analysis struct {
	Windows      int     `json:"windows"`
	VoiceWindows int     `json:"voice_windows"`
	VoiceRatio   float64 `json:"voice_ratio"`
	PeakEnergy   float32 `json:"peak_energy"`
	HasSpeech    bool    `json:"has_speech"`
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	SegmentsChecked uint64    `json:"segments_checked"`
	SilentSegments  uint64    `json:"silent_segments"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(threshold float32, windowSize int, minVoiceRatio float64) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	if minVoiceRatio < 0 || minVoiceRatio > 1 {
		return nil, fmt.Errorf("min voice ratio must be between 0 and 1, got %f", minVoiceRatio)
	}

	return &Processor{
		threshold:     threshold,
		windowSize:    windowSize,
		minVoiceRatio: minVoiceRatio,
	}, nil
}

// Energy returns the normalized RMS energy of a window
func Energy(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(energy/float64(len(samples))) / fullScale
	if rms > 1 {
		rms = 1
	}
	return float32(rms)
}

// Analyze splits samples into windows and classifies each one.
// A trailing partial window is classified like a full one.
func (p *Processor) Analyze(samples []int16) Analysis {
	p.mu.RLock()
	threshold := p.threshold
	p.mu.RUnlock()

	var a Analysis
	for start := 0; start < len(samples); start += p.windowSize {
		end := start + p.windowSize
		if end > len(samples) {
			end = len(samples)
		}

		e := Energy(samples[start:end])
		if e > a.PeakEnergy {
			a.PeakEnergy = e
		}
		a.Windows++
		if e >= threshold {
			a.VoiceWindows++
		}
	}

	if a.Windows > 0 {
		a.VoiceRatio = float64(a.VoiceWindows) / float64(a.Windows)
	}
	a.HasSpeech = a.VoiceWindows > 0 && a.VoiceRatio >= p.minVoiceRatio

	p.mu.Lock()
	p.totalWindows += uint64(a.Windows)
	p.voiceWindows += uint64(a.VoiceWindows)
	p.segmentsChecked++
	if !a.HasSpeech {
		p.silentSegments++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return a
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		SegmentsChecked: p.segmentsChecked,
		SilentSegments:  p.silentSegments,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
	}
}

// UpdateThreshold updates the voice detection threshold
func (p *Processor) UpdateThreshold(threshold float32) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.threshold = threshold
	return nil
}

// GetThreshold returns the current voice detection threshold
func (p *Processor) GetThreshold() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold
}

// GetWindowSize returns the window size in samples
func (p *Processor) GetWindowSize() int {
	return p.windowSize
}
