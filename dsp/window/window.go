// Package window provides precomputed window function tables for
// grain-based resynthesis and spectral analysis.
package window

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeHamming
	TypeBlackman
)

var (
	errEmptyCoeffs      = errors.New("window: empty coefficients")
	errMismatchedLength = errors.New("window: samples and coefficients differ in length")
	errZeroOverlapSum   = errors.New("window: overlapped window sums to zero")
)

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
}

// WithPeriodic configures the periodic form (for overlap-add framing)
// instead of the symmetric form. Periodic windows of length N evaluate
// the symmetric window of length N+1 at its first N points, which makes
// hop-aligned Hann overlaps sum to a constant.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Generate returns window coefficients of the given length.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	for i := range out {
		x := samplePosition(i, length, cfg.periodic)
		out[i] = evalWindow(t, x)
	}

	return out
}

// Hann returns Hann window coefficients.
func Hann(size int, opts ...Option) ([]float64, error) {
	if size <= 0 {
		return nil, errEmptyCoeffs
	}
	return Generate(TypeHann, size, opts...), nil
}

// Apply multiplies buf in-place by the selected window.
func Apply(t Type, buf []float64, opts ...Option) {
	if len(buf) == 0 {
		return
	}

	coeffs := Generate(t, len(buf), opts...)
	vecmath.MulBlockInPlace(buf, coeffs)
}

// ApplyCoefficients multiplies samples with coefficients into dst.
// All three slices must have the same length.
func ApplyCoefficients(dst, samples, coeffs []float64) error {
	if len(dst) != len(samples) || len(samples) != len(coeffs) {
		return errMismatchedLength
	}

	vecmath.MulBlock(dst, samples, coeffs)

	return nil
}

// ApplyCoefficientsInPlace multiplies samples with coefficients in place.
func ApplyCoefficientsInPlace(samples, coeffs []float64) error {
	if len(samples) != len(coeffs) {
		return errMismatchedLength
	}

	vecmath.MulBlockInPlace(samples, coeffs)

	return nil
}

// OverlapGain returns the normalization gain that makes hop-aligned
// overlap-add of the given window sum to unity. For a periodic Hann
// window at 4x overlap this is 0.5.
func OverlapGain(coeffs []float64, overlap int) (float64, error) {
	if len(coeffs) == 0 {
		return 0, errEmptyCoeffs
	}

	if overlap <= 0 || len(coeffs)%overlap != 0 {
		return 0, errors.New("window: overlap must divide the window length")
	}

	hop := len(coeffs) / overlap

	// The overlapped sum of a hop-aligned window is periodic with the hop;
	// probe one hop's worth of positions and take the mean.
	sum := 0.0
	for i := 0; i < hop; i++ {
		for k := 0; k < overlap; k++ {
			sum += coeffs[i+k*hop]
		}
	}
	sum /= float64(hop)

	if sum == 0 {
		return 0, errZeroOverlapSum
	}

	return 1 / sum, nil
}

func samplePosition(i, length int, periodic bool) float64 {
	denom := length - 1
	if periodic {
		denom = length
	}

	if denom <= 0 {
		return 0
	}

	return float64(i) / float64(denom)
}

func evalWindow(t Type, x float64) float64 {
	switch t {
	case TypeHann:
		return 0.5 - 0.5*math.Cos(2*math.Pi*x)
	case TypeHamming:
		return 0.54 - 0.46*math.Cos(2*math.Pi*x)
	case TypeBlackman:
		return 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
	case TypeRectangular:
		return 1
	default:
		return 1
	}
}
