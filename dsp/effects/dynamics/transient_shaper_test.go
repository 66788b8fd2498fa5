package dynamics

import (
	"math"
	"testing"

	"github.com/YarinCardillo/patina/internal/testutil"
)

func runShaper(t *testing.T, ts *TransientShaper, in []float64) []float64 {
	t.Helper()

	out := make([]float64, len(in))

	const blockSize = 128

	for start := 0; start < len(in); start += blockSize {
		end := start + blockSize
		if end > len(in) {
			end = len(in)
		}

		ts.ProcessBlock([][]float64{in[start:end]}, [][]float64{out[start:end]})
	}

	return out
}

func TestTransientShaperZeroSettingsAreTransparent(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1)
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	in := testutil.DeterministicSine(440, 48000, 0.8, 4800)
	out := runShaper(t, ts, in)

	// Attack and sustain both zero pin the target gain at exactly 1,
	// and the smoothed gain starts at 1, so the stage is bit-transparent.
	testutil.RequireSliceNearlyEqual(t, out, in, 0)
}

func TestTransientShaperAttackBoostsOnset(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1, WithTransientAttack(1))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	in := testutil.Burst(9600, 4800, 2400, 0.5)
	out := runShaper(t, ts, in)

	boosted := false
	for i := 4800; i < 7200; i++ {
		if out[i] > in[i]+1e-6 {
			boosted = true
			break
		}
	}

	if !boosted {
		t.Fatal("positive attack never boosted the onset")
	}

	testutil.RequireFinite(t, out)
}

func TestTransientShaperNegativeAttackSoftensOnset(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1, WithTransientAttack(-1))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	in := testutil.Burst(9600, 4800, 2400, 0.5)
	out := runShaper(t, ts, in)

	softened := false
	for i := 4800; i < 7200; i++ {
		if out[i] < in[i]-1e-6 {
			softened = true
			break
		}
	}

	if !softened {
		t.Fatal("negative attack never softened the onset")
	}
}

func TestTransientShaperSustainLiftsTail(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1, WithTransientSustain(1))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	// Loud burst followed by a quiet tail: once the fast envelope
	// releases below the slow one, sustain shaping lifts the tail.
	in := make([]float64, 19200)
	copy(in, testutil.Burst(19200, 0, 4800, 0.8))
	for i := 4800; i < len(in); i++ {
		in[i] = 0.05
	}

	out := runShaper(t, ts, in)

	lifted := false
	for i := 5200; i < 14400; i++ {
		if out[i] > in[i]+1e-6 {
			lifted = true
			break
		}
	}

	if !lifted {
		t.Fatal("positive sustain never lifted the tail")
	}
}

func TestTransientShaperSteadyStateIsUnityGain(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1,
		WithTransientAttack(1), WithTransientSustain(1))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	// On steady input the fast and slow envelopes converge to the same
	// level, the ratio settles at 1, and the target gain must be exactly
	// 1 regardless of the attack/sustain settings.
	in := testutil.DC(0.5, 48000)
	out := runShaper(t, ts, in)

	for i := 47000; i < len(in); i++ {
		if math.Abs(out[i]-in[i]) > 1e-4 {
			t.Fatalf("settled sample %d = %v, want unity-gain %v", i, out[i], in[i])
		}
	}
}

func TestTransientShaperMixZeroIsDry(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1,
		WithTransientAttack(1), WithTransientSustain(-1), WithTransientMix(0))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	in := testutil.Burst(4800, 1200, 600, 0.7)
	out := runShaper(t, ts, in)

	testutil.RequireSliceNearlyEqual(t, out, in, 0)
}

func TestTransientShaperResetRestoresUnityGain(t *testing.T) {
	ts, err := NewTransientShaper(48000, 1, WithTransientAttack(1))
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	runShaper(t, ts, testutil.Burst(9600, 0, 9600, 0.9))
	ts.Reset()

	// After a reset the first sample must pass at exactly unity gain.
	out := runShaper(t, ts, []float64{0.5})
	if out[0] != 0.5 {
		t.Fatalf("post-reset sample = %v, want 0.5", out[0])
	}
}

func TestTransientShaperValidation(t *testing.T) {
	if _, err := NewTransientShaper(0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}

	if _, err := NewTransientShaper(48000, 0); err == nil {
		t.Error("expected error for zero channels")
	}

	if _, err := NewTransientShaper(48000, 1, WithTransientAttack(1.5)); err == nil {
		t.Error("expected error for attack > 1")
	}

	if _, err := NewTransientShaper(48000, 1, WithTransientCutoff(50)); err == nil {
		t.Error("expected error for cutoff below range")
	}

	ts, err := NewTransientShaper(48000, 2)
	if err != nil {
		t.Fatalf("NewTransientShaper() error = %v", err)
	}

	if err := ts.SetCutoff(400); err == nil {
		t.Error("expected error for cutoff above range")
	}

	if err := ts.SetSustain(math.NaN()); err == nil {
		t.Error("expected error for NaN sustain")
	}

	if err := ts.SetAttack(-0.5); err != nil {
		t.Errorf("SetAttack(-0.5) error = %v", err)
	}
}
