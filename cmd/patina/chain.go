package main

import (
	"fmt"

	"github.com/YarinCardillo/patina/dsp/effects"
	"github.com/YarinCardillo/patina/dsp/effects/dynamics"
	"github.com/YarinCardillo/patina/dsp/effects/pitch"
	"github.com/YarinCardillo/patina/dsp/stage"
	"github.com/YarinCardillo/patina/dsp/vinyl"
	"github.com/YarinCardillo/patina/measure/loudness"
)

// chainFlags carries the per-stage parameters shared by all commands.
type chainFlags struct {
	Drive     float64 `default:"0.3" help:"Saturator drive in [0,1]."`
	Harmonics float64 `default:"0.2" help:"Saturator harmonic injection in [0,1]."`

	Wow     float64 `default:"0.35" help:"Tape wow depth in [0,1]."`
	Flutter float64 `default:"0.25" help:"Tape flutter depth in [0,1]."`
	Drift   float64 `default:"0.3" help:"Tape drift depth in [0,1]."`
	Stereo  float64 `default:"0.4" help:"Tape stereo wander depth in [0,1]."`

	Attack  float64 `default:"0" help:"Transient attack emphasis in [-1,1]."`
	Sustain float64 `default:"0" help:"Transient sustain emphasis in [-1,1]."`

	Semitones float64 `default:"0" help:"Pitch shift in [-12,12] semitones."`

	Rate float64 `default:"1.0" help:"Vinyl playback rate in [0.5,2]."`
}

// chain is the full analog character signal path: saturation, tape
// wobble, transient shaping, pitch shift, and the variable-speed vinyl
// buffer, each behind a crossfading bypass switch, with a loudness
// meter tapping the output.
type chain struct {
	platter *vinyl.Buffer
	stages  []*stage.Switcher
	meter   *loudness.Meter

	ping [][]float64
	pong [][]float64
}

func newChain(sampleRate float64, channels, blockSize int, f chainFlags) (*chain, error) {
	sat, err := effects.NewSaturator(sampleRate,
		effects.WithSaturatorDrive(f.Drive),
		effects.WithSaturatorHarmonics(f.Harmonics))
	if err != nil {
		return nil, fmt.Errorf("saturator: %w", err)
	}

	wobble, err := effects.NewTapeWobble(sampleRate, channels,
		effects.WithWowDepth(f.Wow),
		effects.WithFlutterDepth(f.Flutter),
		effects.WithDriftDepth(f.Drift),
		effects.WithStereoDepth(f.Stereo))
	if err != nil {
		return nil, fmt.Errorf("tape wobble: %w", err)
	}

	shaper, err := dynamics.NewTransientShaper(sampleRate, channels,
		dynamics.WithTransientAttack(f.Attack),
		dynamics.WithTransientSustain(f.Sustain))
	if err != nil {
		return nil, fmt.Errorf("transient shaper: %w", err)
	}

	shifter, err := pitch.NewGranularShifter(sampleRate, channels,
		pitch.WithSemitones(f.Semitones))
	if err != nil {
		return nil, fmt.Errorf("pitch shifter: %w", err)
	}

	platter, err := vinyl.NewBuffer(sampleRate, channels,
		vinyl.WithPlaybackRate(f.Rate))
	if err != nil {
		return nil, fmt.Errorf("vinyl buffer: %w", err)
	}

	procs := []stage.Processor{sat, wobble, shaper, shifter, platter}
	active := []bool{
		f.Drive > 0 || f.Harmonics > 0,
		f.Wow > 0 || f.Flutter > 0 || f.Drift > 0 || f.Stereo > 0,
		f.Attack != 0 || f.Sustain != 0,
		f.Semitones != 0,
		f.Rate != 1,
	}

	c := &chain{
		platter: platter,
		meter:   loudness.NewMeter(loudness.WithSampleRate(sampleRate), loudness.WithChannels(channels)),
		ping:    makeBlock(channels, blockSize),
		pong:    makeBlock(channels, blockSize),
	}

	for i, p := range procs {
		sw, err := stage.NewSwitcher(p, sampleRate, channels, blockSize)
		if err != nil {
			return nil, err
		}

		sw.SetActive(active[i])
		sw.Reset() // snap the initial crossfade

		c.stages = append(c.stages, sw)
	}

	return c, nil
}

// process runs one block through every stage in order and meters the
// result. in and out must hold the same number of frames.
func (c *chain) process(in, out [][]float64) {
	frames := 0
	if len(in) > 0 {
		frames = len(in[0])
	}

	src := in
	dst := trimBlock(c.ping, len(out), frames)

	for i, sw := range c.stages {
		if i == len(c.stages)-1 {
			dst = out
		}

		sw.ProcessBlock(src, dst)

		src = dst
		if i%2 == 0 {
			dst = trimBlock(c.pong, len(out), frames)
		} else {
			dst = trimBlock(c.ping, len(out), frames)
		}
	}

	c.meter.ProcessBlock(out)
}

// shortTermLoudness returns the current displayed loudness in LUFS.
func (c *chain) shortTermLoudness() float64 {
	return c.meter.Displayed()
}

func makeBlock(channels, frames int) [][]float64 {
	b := make([][]float64, channels)
	for ch := range b {
		b[ch] = make([]float64, frames)
	}

	return b
}

func trimBlock(b [][]float64, channels, frames int) [][]float64 {
	t := b[:channels]
	for ch := range t {
		t[ch] = t[ch][:frames]
	}

	return t
}
