package harmonics

import (
	"math"
	"testing"

	"github.com/YarinCardillo/patina/dsp/effects"
	"github.com/YarinCardillo/patina/internal/testutil"
)

func TestPureSineHasCleanSpectrum(t *testing.T) {
	const (
		sampleRate = 48000.0
		fftSize    = 8192
	)

	// Bin-centered fundamental keeps leakage out of the measurement.
	freq := sampleRate * 128 / fftSize

	sine := testutil.DeterministicSine(freq, sampleRate, 1.0, fftSize)

	res, err := AnalyzeSignal(sine, Config{
		SampleRate:      sampleRate,
		FundamentalFreq: freq,
		FFTSize:         fftSize,
	})
	if err != nil {
		t.Fatalf("AnalyzeSignal() error = %v", err)
	}

	if math.Abs(res.FundamentalDB) > 0.1 {
		t.Errorf("FundamentalDB = %v, want about 0 dBFS", res.FundamentalDB)
	}

	for _, l := range res.Levels {
		if rel := l.DB - res.FundamentalDB; rel > -60 {
			t.Errorf("harmonic %d at %v dB relative, want below -60", l.Harmonic, rel)
		}
	}
}

func TestSaturatorAddsHarmonicColor(t *testing.T) {
	const (
		sampleRate = 48000.0
		fftSize    = 8192
	)

	freq := sampleRate * 64 / fftSize

	sat, err := effects.NewSaturator(sampleRate,
		effects.WithSaturatorDrive(0.5), effects.WithSaturatorHarmonics(0.8))
	if err != nil {
		t.Fatalf("NewSaturator() error = %v", err)
	}

	sine := testutil.DeterministicSine(freq, sampleRate, 0.8, fftSize)
	sat.ProcessInPlace(sine)

	res, err := AnalyzeSignal(sine, Config{
		SampleRate:      sampleRate,
		FundamentalFreq: freq,
		FFTSize:         fftSize,
	})
	if err != nil {
		t.Fatalf("AnalyzeSignal() error = %v", err)
	}

	// The transfer curve is odd in x, so the distortion products sit on
	// odd harmonics.
	if rel := res.RelativeDB(3); rel < -40 {
		t.Errorf("third harmonic at %v dB relative, want coloration above -40", rel)
	}

	if rel := res.RelativeDB(5); rel < -60 {
		t.Errorf("fifth harmonic at %v dB relative, want coloration above -60", rel)
	}

	// Harmonic energy decays with order.
	if res.RelativeDB(3) <= res.RelativeDB(5) {
		t.Errorf("harmonic decay violated: 3rd %v dB vs 5th %v dB",
			res.RelativeDB(3), res.RelativeDB(5))
	}

	// An odd transfer leaves nothing on the even harmonics.
	if res.RelativeDB(2) >= res.RelativeDB(3) {
		t.Errorf("even harmonic %v dB should sit below odd %v dB",
			res.RelativeDB(2), res.RelativeDB(3))
	}
}

func TestAnalyzeSignalValidation(t *testing.T) {
	if _, err := AnalyzeSignal(nil, Config{SampleRate: 48000, FundamentalFreq: 1000}); err == nil {
		t.Error("expected error for empty signal")
	}

	sine := testutil.DeterministicSine(1000, 48000, 1, 1024)

	if _, err := AnalyzeSignal(sine, Config{SampleRate: 0, FundamentalFreq: 1000}); err == nil {
		t.Error("expected error for zero sample rate")
	}

	if _, err := AnalyzeSignal(sine, Config{SampleRate: 48000, FundamentalFreq: 30000}); err == nil {
		t.Error("expected error for fundamental above nyquist")
	}
}

func TestRelativeDBUnknownHarmonic(t *testing.T) {
	res := Result{FundamentalDB: -3}

	if !math.IsInf(res.RelativeDB(2), -1) {
		t.Errorf("RelativeDB(2) = %v for empty result, want -inf", res.RelativeDB(2))
	}
}
