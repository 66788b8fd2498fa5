package core

import (
	"fmt"
	"math"
)

const twoPi = 2 * math.Pi

// LFO is a sine low-frequency oscillator driven by a phase accumulator.
// Phase advances by frequency*2*pi/sampleRate per sample and wraps into
// [0, 2*pi). Depth scales the output, so Next returns sin(phase)*depth.
type LFO struct {
	sampleRate float64
	freqHz     float64
	depth      float64
	phase      float64
}

// NewLFO creates an oscillator at the given rate and depth.
func NewLFO(freqHz, depth, sampleRate float64) (*LFO, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("lfo sample rate must be > 0: %f", sampleRate)
	}

	if freqHz < 0 || math.IsNaN(freqHz) || math.IsInf(freqHz, 0) {
		return nil, fmt.Errorf("lfo frequency must be >= 0: %f", freqHz)
	}

	return &LFO{
		sampleRate: sampleRate,
		freqHz:     freqHz,
		depth:      depth,
	}, nil
}

// Next returns the current oscillator value and advances the phase by
// one sample.
func (l *LFO) Next() float64 {
	v := math.Sin(l.phase) * l.depth

	l.phase += twoPi * l.freqHz / l.sampleRate
	if l.phase >= twoPi {
		l.phase -= twoPi
	}

	return v
}

// SetFrequency updates the oscillator rate in Hz.
func (l *LFO) SetFrequency(freqHz float64) error {
	if freqHz < 0 || math.IsNaN(freqHz) || math.IsInf(freqHz, 0) {
		return fmt.Errorf("lfo frequency must be >= 0: %f", freqHz)
	}

	l.freqHz = freqHz

	return nil
}

// SetDepth updates the output scale.
func (l *LFO) SetDepth(depth float64) { l.depth = depth }

// Depth returns the output scale.
func (l *LFO) Depth() float64 { return l.depth }

// Frequency returns the oscillator rate in Hz.
func (l *LFO) Frequency() float64 { return l.freqHz }

// Phase returns the current phase in [0, 2*pi).
func (l *LFO) Phase() float64 { return l.phase }

// Reset rewinds the phase to zero.
func (l *LFO) Reset() { l.phase = 0 }
