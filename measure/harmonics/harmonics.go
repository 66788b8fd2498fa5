// Package harmonics measures per-harmonic levels of a signal with a
// known fundamental. It exists to quantify harmonic coloration added by
// nonlinear stages.
package harmonics

import (
	"errors"
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

const (
	defaultMaxHarmonics = 6
	defaultSearchBins   = 2
)

var errEmptySignal = errors.New("harmonics: empty signal")

// Config holds harmonic analysis parameters.
type Config struct {
	SampleRate      float64
	FundamentalFreq float64

	// FFTSize is rounded up to a power of two; zero derives it from the
	// signal length.
	FFTSize int

	// MaxHarmonics is the highest harmonic order to report (default 6).
	MaxHarmonics int

	// SearchBins widens the peak search around each expected bin to
	// tolerate slight detuning (default 2).
	SearchBins int
}

// Level is the measured level of one harmonic.
type Level struct {
	Harmonic int
	FreqHz   float64
	DB       float64
}

// Result holds per-harmonic measurements. Levels are absolute dBFS of
// the equivalent sinusoid amplitude; index 0 is the second harmonic.
type Result struct {
	FundamentalDB float64
	Levels        []Level
}

// RelativeDB returns the level of harmonic n relative to the
// fundamental, or -inf if n was not measured.
func (r Result) RelativeDB(n int) float64 {
	for _, l := range r.Levels {
		if l.Harmonic == n {
			return l.DB - r.FundamentalDB
		}
	}

	return math.Inf(-1)
}

// AnalyzeSignal windows the signal, transforms it, and reads the level
// at the fundamental and each harmonic bin.
func AnalyzeSignal(signal []float64, cfg Config) (Result, error) {
	if len(signal) == 0 {
		return Result{}, errEmptySignal
	}

	if cfg.SampleRate <= 0 || math.IsNaN(cfg.SampleRate) {
		return Result{}, fmt.Errorf("harmonics: sample rate must be > 0: %f", cfg.SampleRate)
	}

	if cfg.FundamentalFreq <= 0 || cfg.FundamentalFreq >= cfg.SampleRate/2 {
		return Result{}, fmt.Errorf("harmonics: fundamental must be in (0, nyquist): %f", cfg.FundamentalFreq)
	}

	fftSize := cfg.FFTSize
	if fftSize <= 0 {
		fftSize = len(signal)
	}
	fftSize = nextPowerOf2(fftSize)

	maxHarmonics := cfg.MaxHarmonics
	if maxHarmonics <= 0 {
		maxHarmonics = defaultMaxHarmonics
	}

	searchBins := cfg.SearchBins
	if searchBins <= 0 {
		searchBins = defaultSearchBins
	}

	n := len(signal)
	if n > fftSize {
		n = fftSize
	}

	coeffs := window.Generate(window.TypeHann, n)

	windowSum := 0.0
	for _, c := range coeffs {
		windowSum += c
	}

	inData := make([]complex128, fftSize)
	for i := 0; i < n; i++ {
		inData[i] = complex(signal[i]*coeffs[i], 0)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return Result{}, fmt.Errorf("harmonics: %w", err)
	}

	out := make([]complex128, fftSize)
	if err := plan.Forward(out, inData); err != nil {
		return Result{}, fmt.Errorf("harmonics: %w", err)
	}

	binCount := fftSize/2 + 1

	re := make([]float64, binCount)
	im := make([]float64, binCount)
	for i := 0; i < binCount; i++ {
		re[i] = real(out[i])
		im[i] = imag(out[i])
	}

	mags := make([]float64, binCount)
	vecmath.Magnitude(mags, re, im)

	binHz := cfg.SampleRate / float64(fftSize)

	res := Result{
		FundamentalDB: peakLevelDB(mags, cfg.FundamentalFreq, binHz, searchBins, windowSum),
	}

	for h := 2; h <= maxHarmonics; h++ {
		freq := cfg.FundamentalFreq * float64(h)
		if freq >= cfg.SampleRate/2 {
			break
		}

		res.Levels = append(res.Levels, Level{
			Harmonic: h,
			FreqHz:   freq,
			DB:       peakLevelDB(mags, freq, binHz, searchBins, windowSum),
		})
	}

	return res, nil
}

// peakLevelDB finds the strongest bin near the expected frequency and
// converts it to the dBFS amplitude of the equivalent sinusoid.
func peakLevelDB(mags []float64, freq, binHz float64, searchBins int, windowSum float64) float64 {
	center := int(math.Round(freq / binHz))

	lo := center - searchBins
	if lo < 1 {
		lo = 1
	}

	hi := center + searchBins
	if hi > len(mags)-1 {
		hi = len(mags) - 1
	}

	peak := 0.0
	for i := lo; i <= hi; i++ {
		if mags[i] > peak {
			peak = mags[i]
		}
	}

	// A unit sinusoid centered on a bin leaves windowSum/2 in that bin.
	amp := 2 * peak / windowSum
	if amp <= 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(amp)
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}

	return p
}
