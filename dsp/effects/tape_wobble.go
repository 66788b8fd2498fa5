package effects

import (
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/core"
	"github.com/YarinCardillo/patina/dsp/delay"
)

const (
	tapeBufferSeconds    = 0.05
	tapeBaseDelaySeconds = 0.01

	tapeWowFrequencyHz     = 0.5
	tapeWowMaxSamples      = 1.0
	tapeFlutterFrequencyHz = 7.0
	tapeFlutterMaxSamples  = 0.38
	tapeDriftFrequencyHz   = 0.1
	tapeDriftMaxSamples    = 0.26
	tapeStereoFrequencyHz  = 0.1
	tapeStereoMaxSamples   = 3.0

	defaultTapeWowDepth     = 1.0
	defaultTapeFlutterDepth = 1.0
	defaultTapeDriftDepth   = 1.0
	defaultTapeStereoDepth  = 1.0
)

// TapeWobbleOption mutates construction-time parameters.
type TapeWobbleOption func(*tapeWobbleConfig) error

type tapeWobbleConfig struct {
	wowDepth     float64
	flutterDepth float64
	driftDepth   float64
	stereoDepth  float64
}

// WithWowDepth scales slow pitch instability in [0, 1].
func WithWowDepth(depth float64) TapeWobbleOption {
	return func(cfg *tapeWobbleConfig) error {
		if depth < 0 || depth > 1 || !isFinite(depth) {
			return fmt.Errorf("tape wobble wow depth must be in [0, 1]: %f", depth)
		}

		cfg.wowDepth = depth

		return nil
	}
}

// WithFlutterDepth scales fast pitch instability in [0, 1].
func WithFlutterDepth(depth float64) TapeWobbleOption {
	return func(cfg *tapeWobbleConfig) error {
		if depth < 0 || depth > 1 || !isFinite(depth) {
			return fmt.Errorf("tape wobble flutter depth must be in [0, 1]: %f", depth)
		}

		cfg.flutterDepth = depth

		return nil
	}
}

// WithDriftDepth scales very slow transport drift in [0, 1].
func WithDriftDepth(depth float64) TapeWobbleOption {
	return func(cfg *tapeWobbleConfig) error {
		if depth < 0 || depth > 1 || !isFinite(depth) {
			return fmt.Errorf("tape wobble drift depth must be in [0, 1]: %f", depth)
		}

		cfg.driftDepth = depth

		return nil
	}
}

// WithStereoDepth scales the opposite-sign inter-channel delay wander
// in [0, 1].
func WithStereoDepth(depth float64) TapeWobbleOption {
	return func(cfg *tapeWobbleConfig) error {
		if depth < 0 || depth > 1 || !isFinite(depth) {
			return fmt.Errorf("tape wobble stereo depth must be in [0, 1]: %f", depth)
		}

		cfg.stereoDepth = depth

		return nil
	}
}

// TapeWobble emulates the pitch instability of a mechanical tape
// transport. Each channel runs through its own fractional delay line
// whose length is modulated by four sine LFOs: wow, flutter and drift
// move both channels together so the pitch wander stays coherent, and
// a fourth LFO wanders the channels apart with opposite sign for
// stereo width. Pitch modulation comes purely from varying the delay
// length, never from resampling.
type TapeWobble struct {
	sampleRate float64
	channels   int

	baseDelay float64
	warmup    int

	lines []*delay.Line

	wow     *core.LFO
	flutter *core.LFO
	drift   *core.LFO
	stereo  *core.LFO

	wowDepth     float64
	flutterDepth float64
	driftDepth   float64
	stereoDepth  float64
}

// NewTapeWobble creates a tape wobble stage for the given channel
// count. Depths default to the full modulation ranges.
func NewTapeWobble(sampleRate float64, channels int, opts ...TapeWobbleOption) (*TapeWobble, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("tape wobble sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("tape wobble channels must be > 0: %d", channels)
	}

	cfg := tapeWobbleConfig{
		wowDepth:     defaultTapeWowDepth,
		flutterDepth: defaultTapeFlutterDepth,
		driftDepth:   defaultTapeDriftDepth,
		stereoDepth:  defaultTapeStereoDepth,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	baseDelay := tapeBaseDelaySeconds * sampleRate

	size := int(math.Ceil(tapeBufferSeconds * sampleRate))
	minSize := int(math.Ceil(baseDelay+tapeWowMaxSamples+tapeFlutterMaxSamples+tapeDriftMaxSamples+tapeStereoMaxSamples)) + 4
	if size < minSize {
		size = minSize
	}

	w := &TapeWobble{
		sampleRate:   sampleRate,
		channels:     channels,
		baseDelay:    baseDelay,
		warmup:       int(baseDelay) + 2,
		lines:        make([]*delay.Line, channels),
		wowDepth:     cfg.wowDepth,
		flutterDepth: cfg.flutterDepth,
		driftDepth:   cfg.driftDepth,
		stereoDepth:  cfg.stereoDepth,
	}

	for ch := range w.lines {
		line, err := delay.New(size)
		if err != nil {
			return nil, err
		}

		w.lines[ch] = line
	}

	var err error

	if w.wow, err = core.NewLFO(tapeWowFrequencyHz, cfg.wowDepth*tapeWowMaxSamples, sampleRate); err != nil {
		return nil, err
	}

	if w.flutter, err = core.NewLFO(tapeFlutterFrequencyHz, cfg.flutterDepth*tapeFlutterMaxSamples, sampleRate); err != nil {
		return nil, err
	}

	if w.drift, err = core.NewLFO(tapeDriftFrequencyHz, cfg.driftDepth*tapeDriftMaxSamples, sampleRate); err != nil {
		return nil, err
	}

	if w.stereo, err = core.NewLFO(tapeStereoFrequencyHz, cfg.stereoDepth*tapeStereoMaxSamples, sampleRate); err != nil {
		return nil, err
	}

	return w, nil
}

// SetWowDepth scales slow pitch instability in [0, 1].
func (w *TapeWobble) SetWowDepth(depth float64) error {
	if depth < 0 || depth > 1 || !isFinite(depth) {
		return fmt.Errorf("tape wobble wow depth must be in [0, 1]: %f", depth)
	}

	w.wowDepth = depth
	w.wow.SetDepth(depth * tapeWowMaxSamples)

	return nil
}

// SetFlutterDepth scales fast pitch instability in [0, 1].
func (w *TapeWobble) SetFlutterDepth(depth float64) error {
	if depth < 0 || depth > 1 || !isFinite(depth) {
		return fmt.Errorf("tape wobble flutter depth must be in [0, 1]: %f", depth)
	}

	w.flutterDepth = depth
	w.flutter.SetDepth(depth * tapeFlutterMaxSamples)

	return nil
}

// SetDriftDepth scales very slow transport drift in [0, 1].
func (w *TapeWobble) SetDriftDepth(depth float64) error {
	if depth < 0 || depth > 1 || !isFinite(depth) {
		return fmt.Errorf("tape wobble drift depth must be in [0, 1]: %f", depth)
	}

	w.driftDepth = depth
	w.drift.SetDepth(depth * tapeDriftMaxSamples)

	return nil
}

// SetStereoDepth scales the inter-channel delay wander in [0, 1].
func (w *TapeWobble) SetStereoDepth(depth float64) error {
	if depth < 0 || depth > 1 || !isFinite(depth) {
		return fmt.Errorf("tape wobble stereo depth must be in [0, 1]: %f", depth)
	}

	w.stereoDepth = depth
	w.stereo.SetDepth(depth * tapeStereoMaxSamples)

	return nil
}

// SampleRate returns sample rate in Hz.
func (w *TapeWobble) SampleRate() float64 { return w.sampleRate }

// Channels returns the channel count.
func (w *TapeWobble) Channels() int { return w.channels }

// WowDepth returns the wow depth scalar.
func (w *TapeWobble) WowDepth() float64 { return w.wowDepth }

// FlutterDepth returns the flutter depth scalar.
func (w *TapeWobble) FlutterDepth() float64 { return w.flutterDepth }

// DriftDepth returns the drift depth scalar.
func (w *TapeWobble) DriftDepth() float64 { return w.driftDepth }

// StereoDepth returns the stereo depth scalar.
func (w *TapeWobble) StereoDepth() float64 { return w.stereoDepth }

// BaseDelaySeconds returns the nominal transport delay.
func (w *TapeWobble) BaseDelaySeconds() float64 { return w.baseDelay / w.sampleRate }

// Reset clears delay history and LFO phases.
func (w *TapeWobble) Reset() {
	for _, line := range w.lines {
		line.Reset()
	}

	w.wow.Reset()
	w.flutter.Reset()
	w.drift.Reset()
	w.stereo.Reset()
}

// ProcessBlock processes per-channel blocks. Input channels beyond the
// configured count are ignored; missing ones are read from the last
// available input channel.
func (w *TapeWobble) ProcessBlock(in, out [][]float64) bool {
	if len(in) == 0 {
		for ch := range out {
			for i := range out[ch] {
				out[ch][i] = 0
			}
		}

		return true
	}

	frames := len(in[0])

	// Each delay line is written exactly once per frame; output channels
	// beyond the configured count duplicate the last processed channel.
	procCh := len(out)
	if procCh > len(w.lines) {
		procCh = len(w.lines)
	}

	for i := 0; i < frames; i++ {
		sharedMod := w.wow.Next() + w.flutter.Next() + w.drift.Next()
		stereoMod := w.stereo.Next()

		for ch := 0; ch < procCh; ch++ {
			src := in[len(in)-1]
			if ch < len(in) {
				src = in[ch]
			}

			line := w.lines[ch]

			dry := src[i]
			line.Write(dry)

			if line.Written() < w.warmup {
				out[ch][i] = dry
				continue
			}

			// Opposite sign on odd channels widens the image.
			sign := 1.0
			if ch%2 == 1 {
				sign = -1.0
			}

			out[ch][i] = line.ReadLinear(w.baseDelay + sharedMod + sign*stereoMod)
		}

		for ch := procCh; ch < len(out); ch++ {
			out[ch][i] = out[procCh-1][i]
		}
	}

	return true
}
