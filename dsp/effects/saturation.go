package effects

import (
	"fmt"
	"math"
)

const (
	defaultSaturatorDrive     = 0.3
	defaultSaturatorHarmonics = 0.2
	defaultSaturatorMix       = 1.0

	// Keeps the drive curve finite as drive approaches 1.
	saturatorDriveEpsilon = 0.01

	// Below this the shaper degenerates to identity; tanh(k*x)/tanh(k)
	// approaches x and evaluating it directly would divide 0 by 0.
	saturatorTinyK = 1e-9

	saturatorLimiterDrive = 0.9
)

// SaturatorOption mutates construction-time parameters.
type SaturatorOption func(*saturatorConfig) error

type saturatorConfig struct {
	drive     float64
	harmonics float64
	mix       float64
}

// WithSaturatorDrive sets waveshaper drive in [0, 1].
func WithSaturatorDrive(drive float64) SaturatorOption {
	return func(cfg *saturatorConfig) error {
		if drive < 0 || drive > 1 || !isFinite(drive) {
			return fmt.Errorf("saturator drive must be in [0, 1]: %f", drive)
		}

		cfg.drive = drive

		return nil
	}
}

// WithSaturatorHarmonics sets harmonic injection amount in [0, 1].
func WithSaturatorHarmonics(harmonics float64) SaturatorOption {
	return func(cfg *saturatorConfig) error {
		if harmonics < 0 || harmonics > 1 || !isFinite(harmonics) {
			return fmt.Errorf("saturator harmonics must be in [0, 1]: %f", harmonics)
		}

		cfg.harmonics = harmonics

		return nil
	}
}

// WithSaturatorMix sets dry/wet mix in [0, 1].
func WithSaturatorMix(mix float64) SaturatorOption {
	return func(cfg *saturatorConfig) error {
		if mix < 0 || mix > 1 || !isFinite(mix) {
			return fmt.Errorf("saturator mix must be in [0, 1]: %f", mix)
		}

		cfg.mix = mix

		return nil
	}
}

// Saturator is a tube-style waveshaper: a normalized tanh transfer
// curve, harmonic injection at orders 2, 4 and 6 with 1/n^2 decay, a
// soft output limiter, and loudness-compensating output gain. It is
// stateless, so one instance serves any number of channels.
type Saturator struct {
	sampleRate float64

	drive     float64
	harmonics float64
	mix       float64
}

// NewSaturator creates a saturator with musical defaults.
func NewSaturator(sampleRate float64, opts ...SaturatorOption) (*Saturator, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("saturator sample rate must be > 0: %f", sampleRate)
	}

	cfg := saturatorConfig{
		drive:     defaultSaturatorDrive,
		harmonics: defaultSaturatorHarmonics,
		mix:       defaultSaturatorMix,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Saturator{
		sampleRate: sampleRate,
		drive:      cfg.drive,
		harmonics:  cfg.harmonics,
		mix:        cfg.mix,
	}, nil
}

// SetDrive sets waveshaper drive in [0, 1].
func (s *Saturator) SetDrive(drive float64) error {
	if drive < 0 || drive > 1 || !isFinite(drive) {
		return fmt.Errorf("saturator drive must be in [0, 1]: %f", drive)
	}

	s.drive = drive

	return nil
}

// SetHarmonics sets harmonic injection amount in [0, 1].
func (s *Saturator) SetHarmonics(harmonics float64) error {
	if harmonics < 0 || harmonics > 1 || !isFinite(harmonics) {
		return fmt.Errorf("saturator harmonics must be in [0, 1]: %f", harmonics)
	}

	s.harmonics = harmonics

	return nil
}

// SetMix sets dry/wet mix in [0, 1].
func (s *Saturator) SetMix(mix float64) error {
	if mix < 0 || mix > 1 || !isFinite(mix) {
		return fmt.Errorf("saturator mix must be in [0, 1]: %f", mix)
	}

	s.mix = mix

	return nil
}

// SampleRate returns sample rate in Hz.
func (s *Saturator) SampleRate() float64 { return s.sampleRate }

// Drive returns waveshaper drive.
func (s *Saturator) Drive() float64 { return s.drive }

// Harmonics returns harmonic injection amount.
func (s *Saturator) Harmonics() float64 { return s.harmonics }

// Mix returns dry/wet mix.
func (s *Saturator) Mix() float64 { return s.mix }

// Reset is a no-op; the saturator carries no state across blocks.
func (s *Saturator) Reset() {}

// ProcessSample applies saturation to one sample.
func (s *Saturator) ProcessSample(input float64) float64 {
	dry := input
	x := input

	k := 2 * s.drive / (1 - s.drive + saturatorDriveEpsilon)

	var y float64
	if k < saturatorTinyK {
		y = x
	} else {
		y = mathTanh(k*x) / mathTanh(k)
	}

	if s.harmonics > 0 {
		ax := math.Abs(x)
		ax2 := ax * ax

		// Even orders 2, 4, 6 with 1/n^2 decay: x*|x|^(n-1)/n^2.
		y += s.harmonics * (x*ax/4 + x*ax*ax2/16 + x*ax*ax2*ax2/36)
	}

	y = mathTanh(saturatorLimiterDrive*y) / saturatorLimiterDrive
	y /= 1 + 0.3*s.drive + 0.25*s.harmonics

	return dry*(1-s.mix) + y*s.mix
}

// ProcessInPlace applies saturation to buf in place.
func (s *Saturator) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = s.ProcessSample(buf[i])
	}
}

// ProcessBlock processes per-channel blocks. Missing input channels are
// duplicated from the last available one.
func (s *Saturator) ProcessBlock(in, out [][]float64) bool {
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

		for i := range out[ch] {
			out[ch][i] = s.ProcessSample(src[i])
		}
	}

	return true
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
