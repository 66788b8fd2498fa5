// Package pitch provides a time-domain granular pitch shifter.
package pitch

import (
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/core"
	"github.com/YarinCardillo/patina/dsp/window"
	"github.com/cwbudde/algo-vecmath"
)

const (
	defaultGrainLength = 2048
	grainOverlap       = 4

	minSemitones = -12.0
	maxSemitones = 12.0

	// Within this distance of ratio 1.0 the shifter passes input
	// through untouched.
	unityRatioEpsilon = 1e-4

	ratioSmoothSeconds = 0.02

	// Output ring headroom over the grain length; reads and writes
	// drift apart at non-unity ratios.
	outputRingFactor = 4
)

// GranularShifterOption mutates construction-time parameters.
type GranularShifterOption func(*granularConfig) error

type granularConfig struct {
	grainLength int
	semitones   float64
}

// WithGrainLength sets the grain length in samples. It must be a
// positive multiple of the overlap factor (4).
func WithGrainLength(length int) GranularShifterOption {
	return func(cfg *granularConfig) error {
		if length <= 0 || length%grainOverlap != 0 {
			return fmt.Errorf("grain length must be a positive multiple of %d: %d", grainOverlap, length)
		}

		cfg.grainLength = length

		return nil
	}
}

// WithSemitones sets the initial pitch shift in [-12, 12] semitones.
func WithSemitones(semitones float64) GranularShifterOption {
	return func(cfg *granularConfig) error {
		if semitones < minSemitones || semitones > maxSemitones || math.IsNaN(semitones) {
			return fmt.Errorf("semitones must be in [%f, %f]: %f", minSemitones, maxSemitones, semitones)
		}

		cfg.semitones = semitones

		return nil
	}
}

// shifterChannel holds per-channel grain state.
type shifterChannel struct {
	input   []float64
	inPos   int
	output  []float64
	outPos  int
	readPos float64
	grain   []float64
}

// GranularShifter is a time-domain overlap-add pitch shifter. Incoming
// samples accumulate in an input ring; every hop samples the most
// recent grain of history is windowed and overlap-added into an output
// ring. The output read cursor advances by the smoothed pitch ratio,
// interpolating between samples and clearing each slot once consumed so
// stale grain energy is never re-read. Simple overlap-add granular
// synthesis is audibly imperfect at extreme ratios; that tradeoff is
// accepted.
type GranularShifter struct {
	sampleRate  float64
	grainLength int
	hop         int

	semitones float64
	ratio     core.SmoothedParam

	coeffs  []float64
	olaGain float64

	hopCount int
	channels []shifterChannel
}

// NewGranularShifter creates a pitch shifter for the given channel count.
func NewGranularShifter(sampleRate float64, channelCount int, opts ...GranularShifterOption) (*GranularShifter, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("granular shifter sample rate must be > 0: %f", sampleRate)
	}

	if channelCount <= 0 {
		return nil, fmt.Errorf("granular shifter channels must be > 0: %d", channelCount)
	}

	cfg := granularConfig{grainLength: defaultGrainLength}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	coeffs := window.Generate(window.TypeHann, cfg.grainLength, window.WithPeriodic())

	olaGain, err := window.OverlapGain(coeffs, grainOverlap)
	if err != nil {
		return nil, err
	}

	g := &GranularShifter{
		sampleRate:  sampleRate,
		grainLength: cfg.grainLength,
		hop:         cfg.grainLength / grainOverlap,
		semitones:   cfg.semitones,
		ratio:       core.NewSmoothedParam(core.SemitonesToRatio(cfg.semitones), ratioSmoothSeconds, sampleRate),
		coeffs:      coeffs,
		olaGain:     olaGain,
		channels:    make([]shifterChannel, channelCount),
	}

	for ch := range g.channels {
		g.channels[ch] = shifterChannel{
			input:  make([]float64, 2*cfg.grainLength),
			output: make([]float64, outputRingFactor*cfg.grainLength),
			grain:  make([]float64, cfg.grainLength),
		}
	}

	return g, nil
}

// SetSemitones sets the target pitch shift in [-12, 12] semitones. The
// working ratio glides toward 2^(semitones/12).
func (g *GranularShifter) SetSemitones(semitones float64) error {
	if semitones < minSemitones || semitones > maxSemitones || math.IsNaN(semitones) {
		return fmt.Errorf("semitones must be in [%f, %f]: %f", minSemitones, maxSemitones, semitones)
	}

	g.semitones = semitones
	g.ratio.SetTarget(core.SemitonesToRatio(semitones))

	return nil
}

// Semitones returns the target pitch shift.
func (g *GranularShifter) Semitones() float64 { return g.semitones }

// Ratio returns the current smoothed pitch ratio.
func (g *GranularShifter) Ratio() float64 { return g.ratio.Value() }

// GrainLength returns the grain length in samples.
func (g *GranularShifter) GrainLength() int { return g.grainLength }

// Hop returns the grain hop in samples.
func (g *GranularShifter) Hop() int { return g.hop }

// SampleRate returns sample rate in Hz.
func (g *GranularShifter) SampleRate() float64 { return g.sampleRate }

// Channels returns the channel count.
func (g *GranularShifter) Channels() int { return len(g.channels) }

// Reset clears all grain state and snaps the ratio to its target.
func (g *GranularShifter) Reset() {
	g.hopCount = 0
	g.ratio.Snap()

	for ch := range g.channels {
		st := &g.channels[ch]
		for i := range st.input {
			st.input[i] = 0
		}
		for i := range st.output {
			st.output[i] = 0
		}
		st.inPos = 0
		st.outPos = 0
		st.readPos = 0
	}
}

// ProcessBlock processes per-channel blocks. The grain machinery runs
// even while the ratio sits at unity so re-engaging a shift never
// replays stale state.
func (g *GranularShifter) ProcessBlock(in, out [][]float64) bool {
	if len(in) == 0 {
		for ch := range out {
			for i := range out[ch] {
				out[ch][i] = 0
			}
		}

		return true
	}

	frames := len(in[0])

	// Each channel's rings advance exactly once per frame; output
	// channels beyond the configured count duplicate the last processed
	// channel.
	procCh := len(out)
	if procCh > len(g.channels) {
		procCh = len(g.channels)
	}

	for i := 0; i < frames; i++ {
		ratio := g.ratio.Next()
		passthrough := math.Abs(ratio-1) <= unityRatioEpsilon

		g.hopCount++
		emit := g.hopCount >= g.hop
		if emit {
			g.hopCount = 0
		}

		for ch := 0; ch < procCh; ch++ {
			src := in[len(in)-1]
			if ch < len(in) {
				src = in[ch]
			}

			st := &g.channels[ch]

			st.input[st.inPos] = src[i]
			st.inPos++
			if st.inPos >= len(st.input) {
				st.inPos = 0
			}

			if emit {
				g.emitGrain(st)
			}

			shifted := g.readOutput(st, ratio)
			if passthrough {
				out[ch][i] = src[i]
			} else {
				out[ch][i] = shifted
			}
		}

		for ch := procCh; ch < len(out); ch++ {
			out[ch][i] = out[procCh-1][i]
		}
	}

	return true
}

// emitGrain windows the most recent grainLength samples of input
// history and overlap-adds them into the output ring, then advances the
// grain write cursor by one hop.
func (g *GranularShifter) emitGrain(st *shifterChannel) {
	start := st.inPos - g.grainLength
	if start < 0 {
		start += len(st.input)
	}

	for j := 0; j < g.grainLength; j++ {
		idx := start + j
		if idx >= len(st.input) {
			idx -= len(st.input)
		}

		st.grain[j] = st.input[idx]
	}

	// grain and coeffs share the grain length by construction.
	vecmath.MulBlockInPlace(st.grain, g.coeffs)

	outLen := len(st.output)
	pos := st.outPos

	for j := 0; j < g.grainLength; j++ {
		st.output[pos] += st.grain[j] * g.olaGain
		pos++
		if pos >= outLen {
			pos = 0
		}
	}

	st.outPos += g.hop
	if st.outPos >= outLen {
		st.outPos -= outLen
	}
}

// readOutput interpolates one sample at the fractional read cursor,
// clears the slot it just consumed, and advances the cursor by ratio.
func (g *GranularShifter) readOutput(st *shifterChannel, ratio float64) float64 {
	outLen := len(st.output)

	i0 := int(st.readPos)
	i1 := i0 + 1
	if i1 >= outLen {
		i1 = 0
	}

	frac := st.readPos - float64(i0)
	sample := st.output[i0]*(1-frac) + st.output[i1]*frac

	st.output[i0] = 0

	st.readPos += ratio
	if st.readPos >= float64(outLen) {
		st.readPos -= float64(outLen)
	}

	return sample
}
