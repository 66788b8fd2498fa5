package vinyl

import (
	"testing"

	"github.com/YarinCardillo/patina/internal/testutil"
)

func runBuffer(t *testing.T, b *Buffer, in []float64, blockSize int) []float64 {
	t.Helper()

	out := make([]float64, len(in))

	for start := 0; start < len(in); start += blockSize {
		end := start + blockSize
		if end > len(in) {
			end = len(in)
		}

		b.ProcessBlock([][]float64{in[start:end]}, [][]float64{out[start:end]})
	}

	return out
}

func TestBufferUnityRateReproducesInput(t *testing.T) {
	b, err := NewBuffer(1000, 1, WithInitialSeconds(1), WithCeilingSeconds(4))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	in := testutil.DeterministicNoise(3, 1, 800)
	out := runBuffer(t, b, in, 64)

	// The first frame arrives before any history exists and passes dry;
	// after that the read cursor trails the write cursor by one frame.
	if out[0] != in[0] {
		t.Fatalf("out[0] = %v, want dry %v", out[0], in[0])
	}

	for n := 1; n < len(in); n++ {
		if out[n] != in[n-1] {
			t.Fatalf("out[%d] = %v, want %v", n, out[n], in[n-1])
		}
	}
}

func TestBufferGrowthPreservesBacklog(t *testing.T) {
	grown, err := NewBuffer(1000, 1,
		WithInitialSeconds(0.2), WithCeilingSeconds(10), WithPlaybackRate(0.5))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	reference, err := NewBuffer(1000, 1,
		WithInitialSeconds(10), WithCeilingSeconds(10), WithPlaybackRate(0.5))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	in := testutil.DeterministicNoise(11, 1, 5000)

	outGrown := runBuffer(t, grown, in, 128)
	outRef := runBuffer(t, reference, in, 128)

	if grown.Capacity() <= 200 {
		t.Fatalf("capacity = %d, expected growth beyond 200 frames", grown.Capacity())
	}

	// Doubling copies the backlog in playback order and keeps the read
	// cursor's fractional offset, so playback is indistinguishable from a
	// buffer that never had to grow.
	testutil.RequireSliceNearlyEqual(t, outGrown, outRef, 0)
}

func TestBufferBackpressureAtCeiling(t *testing.T) {
	b, err := NewBuffer(1000, 1,
		WithInitialSeconds(0.1), WithCeilingSeconds(0.1), WithPlaybackRate(0.5))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	in := testutil.DeterministicSine(50, 1000, 1, 5000)

	forced := false
	maxUtilization := 0.0

	for i := range in {
		b.ProcessBlock([][]float64{in[i : i+1]}, [][]float64{make([]float64, 1)})

		st := b.Stats()
		if st.CurrentPlaybackRate >= backpressureRate {
			forced = true
		}

		if st.BufferUtilization > maxUtilization {
			maxUtilization = st.BufferUtilization
		}
	}

	if !forced {
		t.Fatal("backpressure never forced the playback rate up")
	}

	if maxUtilization > 0.95 {
		t.Fatalf("utilization reached %v, backpressure failed to drain", maxUtilization)
	}
}

func TestBufferFlushDiscardsBacklog(t *testing.T) {
	b, err := NewBuffer(1000, 1,
		WithInitialSeconds(2), WithCeilingSeconds(2), WithPlaybackRate(0.5))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	runBuffer(t, b, testutil.DeterministicNoise(5, 1, 1000), 128)

	if b.Stats().BacklogSeconds < 0.3 {
		t.Fatalf("backlog = %v s before flush, want accumulation", b.Stats().BacklogSeconds)
	}

	if !b.Flush() {
		t.Fatal("Flush() rejected the command")
	}

	runBuffer(t, b, make([]float64, 16), 16)

	if b.Stats().BacklogSeconds > 0.02 {
		t.Fatalf("backlog = %v s after flush, want near zero", b.Stats().BacklogSeconds)
	}
}

func TestBufferSlowRateStretchesImpulseTrain(t *testing.T) {
	b, err := NewBuffer(1000, 1,
		WithInitialSeconds(0.5), WithCeilingSeconds(8), WithPlaybackRate(0.733))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	const period = 100

	in := testutil.ImpulseTrain(5500, period)
	out := runBuffer(t, b, in, 128)

	testutil.RequireFinite(t, out)

	// Collect impulse cluster positions. Linear interpolation smears each
	// impulse across neighboring output samples, so group nearby hits.
	var positions []int
	last := -100
	for i, v := range out {
		if v > 0.3 && i-last > 50 {
			positions = append(positions, i)
		}
		if v > 0.3 {
			last = i
		}
	}

	// Total read advance covers about 4030 input frames, i.e. roughly 41
	// impulses, stretched but none lost.
	if len(positions) < 39 || len(positions) > 43 {
		t.Fatalf("impulse count = %d, want about 41", len(positions))
	}

	// Spacing stretches from 100 frames to about 100/0.733 = 136.4.
	for i := 3; i < len(positions); i++ {
		gap := positions[i] - positions[i-1]
		if gap < 134 || gap > 139 {
			t.Fatalf("cluster %d gap = %d, want about 136", i, gap)
		}
	}
}

func TestBufferTelemetryIsPeriodic(t *testing.T) {
	b, err := NewBuffer(1000, 1, WithInitialSeconds(1), WithCeilingSeconds(1))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	if _, ok := b.PollStats(); ok {
		t.Fatal("telemetry pending before any processing")
	}

	in := make([]float64, 1)
	out := make([]float64, 1)

	for i := 0; i < telemetryBlockInterval; i++ {
		b.ProcessBlock([][]float64{in}, [][]float64{out})
	}

	st, ok := b.PollStats()
	if !ok {
		t.Fatal("no telemetry after the reporting interval")
	}

	if st.CurrentPlaybackRate != 1 {
		t.Fatalf("telemetry rate = %v, want 1", st.CurrentPlaybackRate)
	}
}

func TestBufferValidation(t *testing.T) {
	if _, err := NewBuffer(0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}

	if _, err := NewBuffer(48000, 0); err == nil {
		t.Error("expected error for zero channels")
	}

	if _, err := NewBuffer(48000, 2, WithInitialSeconds(-1)); err == nil {
		t.Error("expected error for negative initial capacity")
	}

	if _, err := NewBuffer(48000, 2, WithPlaybackRate(3)); err == nil {
		t.Error("expected error for rate above range")
	}

	if _, err := NewBuffer(48000, 2, WithInitialSeconds(60), WithCeilingSeconds(30)); err == nil {
		t.Error("expected error for ceiling below initial capacity")
	}

	b, err := NewBuffer(48000, 2)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	if err := b.SetTargetRate(0.25); err == nil {
		t.Error("expected error for rate below range")
	}

	if err := b.SetTargetRate(1.25); err != nil {
		t.Errorf("SetTargetRate(1.25) error = %v", err)
	}
}
