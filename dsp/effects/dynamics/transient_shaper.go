// Package dynamics provides envelope-driven gain processors.
package dynamics

import (
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/core"
)

const (
	defaultTransientAttack  = 0.0
	defaultTransientSustain = 0.0
	defaultTransientCutoff  = 200.0
	defaultTransientMix     = 1.0

	minTransientCutoff = 100.0
	maxTransientCutoff = 300.0

	transientFastAttackSeconds  = 0.0001
	transientFastReleaseSeconds = 0.005
	transientSlowAttackSeconds  = 0.01
	transientSlowReleaseSeconds = 0.1

	transientGainSmoothSeconds = 0.005

	transientRatioEpsilon = 1e-10
)

// TransientShaperOption mutates construction-time parameters.
type TransientShaperOption func(*transientConfig) error

type transientConfig struct {
	attack  float64
	sustain float64
	cutoff  float64
	mix     float64
}

// WithTransientAttack sets attack emphasis in [-1, 1]. Positive values
// boost transients, negative values soften them.
func WithTransientAttack(attack float64) TransientShaperOption {
	return func(cfg *transientConfig) error {
		if attack < -1 || attack > 1 || math.IsNaN(attack) {
			return fmt.Errorf("transient attack must be in [-1, 1]: %f", attack)
		}

		cfg.attack = attack

		return nil
	}
}

// WithTransientSustain sets sustain emphasis in [-1, 1]. Positive values
// lift the signal between transients, negative values tighten it.
func WithTransientSustain(sustain float64) TransientShaperOption {
	return func(cfg *transientConfig) error {
		if sustain < -1 || sustain > 1 || math.IsNaN(sustain) {
			return fmt.Errorf("transient sustain must be in [-1, 1]: %f", sustain)
		}

		cfg.sustain = sustain

		return nil
	}
}

// WithTransientCutoff sets the sidechain low-pass cutoff in [100, 300] Hz.
func WithTransientCutoff(cutoffHz float64) TransientShaperOption {
	return func(cfg *transientConfig) error {
		if cutoffHz < minTransientCutoff || cutoffHz > maxTransientCutoff || math.IsNaN(cutoffHz) {
			return fmt.Errorf("transient cutoff must be in [%f, %f]: %f",
				minTransientCutoff, maxTransientCutoff, cutoffHz)
		}

		cfg.cutoff = cutoffHz

		return nil
	}
}

// WithTransientMix sets dry/wet mix in [0, 1].
func WithTransientMix(mix float64) TransientShaperOption {
	return func(cfg *transientConfig) error {
		if mix < 0 || mix > 1 || math.IsNaN(mix) {
			return fmt.Errorf("transient mix must be in [0, 1]: %f", mix)
		}

		cfg.mix = mix

		return nil
	}
}

// transientChannel holds the per-channel detection and gain state.
type transientChannel struct {
	lowpass float64
	fast    *core.EnvelopeFollower
	slow    *core.EnvelopeFollower
	gain    float64
}

// TransientShaper detects transients on a low-pass filtered sidechain
// and applies a smoothed gain to the unfiltered fullband signal.
// Detection compares a fast envelope follower against a slow one: when
// the fast envelope leads, the signal is in a transient phase and the
// attack parameter shapes it; otherwise the sustain parameter shapes
// the tail. The detection path never reaches the output directly.
type TransientShaper struct {
	sampleRate float64

	attack  float64
	sustain float64
	cutoff  float64
	mix     float64

	lpCoeff    float64
	smoothing  float64
	channelSts []transientChannel
}

// NewTransientShaper creates a transient shaper for the given channel
// count. With both attack and sustain at their zero defaults the stage
// is transparent.
func NewTransientShaper(sampleRate float64, channels int, opts ...TransientShaperOption) (*TransientShaper, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("transient shaper sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("transient shaper channels must be > 0: %d", channels)
	}

	cfg := transientConfig{
		attack:  defaultTransientAttack,
		sustain: defaultTransientSustain,
		cutoff:  defaultTransientCutoff,
		mix:     defaultTransientMix,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ts := &TransientShaper{
		sampleRate: sampleRate,
		attack:     cfg.attack,
		sustain:    cfg.sustain,
		cutoff:     cfg.cutoff,
		mix:        cfg.mix,
		lpCoeff:    lowpassCoeff(cfg.cutoff, sampleRate),
		smoothing:  core.OnePoleCoeff(transientGainSmoothSeconds, sampleRate),
		channelSts: make([]transientChannel, channels),
	}

	for ch := range ts.channelSts {
		fast, err := core.NewEnvelopeFollower(transientFastAttackSeconds, transientFastReleaseSeconds, sampleRate)
		if err != nil {
			return nil, err
		}

		slow, err := core.NewEnvelopeFollower(transientSlowAttackSeconds, transientSlowReleaseSeconds, sampleRate)
		if err != nil {
			return nil, err
		}

		ts.channelSts[ch] = transientChannel{fast: fast, slow: slow, gain: 1}
	}

	return ts, nil
}

// SetAttack sets attack emphasis in [-1, 1].
func (ts *TransientShaper) SetAttack(attack float64) error {
	if attack < -1 || attack > 1 || math.IsNaN(attack) {
		return fmt.Errorf("transient attack must be in [-1, 1]: %f", attack)
	}

	ts.attack = attack

	return nil
}

// SetSustain sets sustain emphasis in [-1, 1].
func (ts *TransientShaper) SetSustain(sustain float64) error {
	if sustain < -1 || sustain > 1 || math.IsNaN(sustain) {
		return fmt.Errorf("transient sustain must be in [-1, 1]: %f", sustain)
	}

	ts.sustain = sustain

	return nil
}

// SetCutoff sets the sidechain low-pass cutoff in [100, 300] Hz.
func (ts *TransientShaper) SetCutoff(cutoffHz float64) error {
	if cutoffHz < minTransientCutoff || cutoffHz > maxTransientCutoff || math.IsNaN(cutoffHz) {
		return fmt.Errorf("transient cutoff must be in [%f, %f]: %f",
			minTransientCutoff, maxTransientCutoff, cutoffHz)
	}

	ts.cutoff = cutoffHz
	ts.lpCoeff = lowpassCoeff(cutoffHz, ts.sampleRate)

	return nil
}

// SetMix sets dry/wet mix in [0, 1].
func (ts *TransientShaper) SetMix(mix float64) error {
	if mix < 0 || mix > 1 || math.IsNaN(mix) {
		return fmt.Errorf("transient mix must be in [0, 1]: %f", mix)
	}

	ts.mix = mix

	return nil
}

// SampleRate returns sample rate in Hz.
func (ts *TransientShaper) SampleRate() float64 { return ts.sampleRate }

// Attack returns attack emphasis.
func (ts *TransientShaper) Attack() float64 { return ts.attack }

// Sustain returns sustain emphasis.
func (ts *TransientShaper) Sustain() float64 { return ts.sustain }

// Cutoff returns the sidechain cutoff in Hz.
func (ts *TransientShaper) Cutoff() float64 { return ts.cutoff }

// Mix returns dry/wet mix.
func (ts *TransientShaper) Mix() float64 { return ts.mix }

// Channels returns the channel count.
func (ts *TransientShaper) Channels() int { return len(ts.channelSts) }

// Reset clears all per-channel detection state and snaps gains to unity.
func (ts *TransientShaper) Reset() {
	for ch := range ts.channelSts {
		st := &ts.channelSts[ch]
		st.lowpass = 0
		st.fast.Reset()
		st.slow.Reset()
		st.gain = 1
	}
}

// ProcessBlock processes per-channel blocks.
func (ts *TransientShaper) ProcessBlock(in, out [][]float64) bool {
	for ch := range out {
		if len(in) == 0 {
			for i := range out[ch] {
				out[ch][i] = 0
			}

			continue
		}

		src := in[len(in)-1]
		if ch < len(in) {
			src = in[ch]
		}

		st := &ts.channelSts[len(ts.channelSts)-1]
		if ch < len(ts.channelSts) {
			st = &ts.channelSts[ch]
		}

		for i := range out[ch] {
			out[ch][i] = ts.processSample(st, src[i])
		}
	}

	return true
}

func (ts *TransientShaper) processSample(st *transientChannel, dry float64) float64 {
	// Detection path: low-passed copy feeding both envelopes.
	st.lowpass += ts.lpCoeff * (dry - st.lowpass)

	level := math.Abs(st.lowpass)
	fast := st.fast.ProcessSample(level)
	slow := st.slow.ProcessSample(level)

	ratio := fast / (slow + transientRatioEpsilon)

	var target float64
	if ratio > 1 {
		target = 1 + ts.attack*(ratio-1)
	} else {
		target = 1 + ts.sustain*(1-ratio)
	}

	if target < 0 {
		target = 0
	}

	st.gain += ts.smoothing * (target - st.gain)

	wet := dry * st.gain

	return dry*(1-ts.mix) + wet*ts.mix
}

// lowpassCoeff converts a cutoff frequency to a one-pole smoothing
// coefficient.
func lowpassCoeff(cutoffHz, sampleRate float64) float64 {
	return 1 - math.Exp(-2*math.Pi*cutoffHz/sampleRate)
}
