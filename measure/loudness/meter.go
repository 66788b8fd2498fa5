// Package loudness implements K-weighted loudness metering after
// ITU-R BS.1770, tuned for a live display: a sliding short-term window
// with an absolute gate and exponential display smoothing.
package loudness

import (
	"math"

	"github.com/YarinCardillo/patina/dsp/filter/biquad"
	"github.com/YarinCardillo/patina/dsp/filter/design"
)

const (
	// K-weighting filter parameters from BS.1770.
	kWeightingShelfFreq = 1500.0
	kWeightingShelfGain = 4.0

	kWeightingHpfFreq = 38.0
	kWeightingHpfQ    = 0.5

	// Short-term integration window in seconds.
	defaultWindowSeconds = 3.0

	// Absolute gate: below this the displayed value walks down in fixed
	// steps instead of holding or jumping.
	defaultGateLUFS = -70.0
	gateDecayStep   = 1.5

	// Exponential smoothing factor for the displayed value.
	defaultDisplaySmoothing = 0.3
)

// Meter measures K-weighted loudness over a sliding 3 s window. Each
// channel runs through a high-shelf and a high-pass biquad; squared
// filter output feeds a ring buffer with running sums so the windowed
// mean square is available at any time. The displayed value is gated
// and smoothed separately from the raw measurement.
type Meter struct {
	sampleRate float64
	channels   int

	gate      float64
	smoothing float64

	shelf []*biquad.Section
	hpf   []*biquad.Section

	windowSamples int
	history       [][]float64
	writeIdx      int
	runningSums   []float64

	displayed float64
}

// NewMeter creates a loudness meter with the given options.
func NewMeter(opts ...MeterOption) *Meter {
	cfg := ApplyMeterOptions(opts...)

	m := &Meter{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		gate:       cfg.GateLUFS,
		smoothing:  cfg.DisplaySmoothing,
	}

	shelfCoeffs := design.HighShelf(kWeightingShelfFreq, kWeightingShelfGain, 1.0/math.Sqrt2, m.sampleRate)
	hpfCoeffs := design.Highpass(kWeightingHpfFreq, kWeightingHpfQ, m.sampleRate)

	m.shelf = make([]*biquad.Section, m.channels)
	m.hpf = make([]*biquad.Section, m.channels)

	for i := range m.channels {
		m.shelf[i] = biquad.NewSection(shelfCoeffs)
		m.hpf[i] = biquad.NewSection(hpfCoeffs)
	}

	m.windowSamples = int(math.Round(cfg.WindowSeconds * m.sampleRate))
	if m.windowSamples < 1 {
		m.windowSamples = 1
	}

	m.history = make([][]float64, m.channels)
	for i := range m.history {
		m.history[i] = make([]float64, m.windowSamples)
	}

	m.runningSums = make([]float64, m.channels)
	m.displayed = m.gate

	return m
}

// Gate returns the absolute gate threshold in LUFS.
func (m *Meter) Gate() float64 { return m.gate }

// WindowSeconds returns the integration window duration.
func (m *Meter) WindowSeconds() float64 { return float64(m.windowSamples) / m.sampleRate }

// SampleRate returns sample rate in Hz.
func (m *Meter) SampleRate() float64 { return m.sampleRate }

// Channels returns the channel count.
func (m *Meter) Channels() int { return m.channels }

// Reset clears filter and window state and snaps the display to the
// gate threshold.
func (m *Meter) Reset() {
	for i := range m.channels {
		m.shelf[i].Reset()
		m.hpf[i].Reset()

		for j := range m.history[i] {
			m.history[i][j] = 0
		}

		m.runningSums[i] = 0
	}

	m.writeIdx = 0
	m.displayed = m.gate
}

// ProcessFrame meters one multi-channel frame.
func (m *Meter) ProcessFrame(frame []float64) {
	if len(frame) < m.channels {
		return
	}

	for i := range m.channels {
		m.meterSample(i, frame[i])
	}

	m.advanceWindow()
}

// ProcessBlock meters per-channel sample blocks and then advances the
// gated display value once.
func (m *Meter) ProcessBlock(in [][]float64) {
	if len(in) == 0 {
		return
	}

	frames := len(in[0])

	for i := 0; i < frames; i++ {
		for ch := range m.channels {
			src := in[len(in)-1]
			if ch < len(in) {
				src = in[ch]
			}

			m.meterSample(ch, src[i])
		}

		m.advanceWindow()
	}

	m.updateDisplay()
}

// meterSample K-weights one sample and folds its square into the
// channel's sliding window.
func (m *Meter) meterSample(ch int, x float64) {
	val := m.shelf[ch].ProcessSample(x)
	val = m.hpf[ch].ProcessSample(val)

	sq := val * val

	old := m.history[ch][m.writeIdx]
	m.history[ch][m.writeIdx] = sq

	m.runningSums[ch] += sq - old
	if m.runningSums[ch] < 0 {
		m.runningSums[ch] = 0
	}
}

func (m *Meter) advanceWindow() {
	m.writeIdx++
	if m.writeIdx >= m.windowSamples {
		m.writeIdx = 0
	}
}

// ShortTerm returns the raw, ungated loudness of the current window in
// LUFS.
func (m *Meter) ShortTerm() float64 {
	meanSqSum := 0.0
	for i := range m.channels {
		meanSqSum += m.runningSums[i] / float64(m.windowSamples)
	}

	return toLUFS(meanSqSum)
}

// Displayed returns the gated, smoothed loudness for display in LUFS.
func (m *Meter) Displayed() float64 { return m.displayed }

// updateDisplay applies the absolute gate and display smoothing. Below
// the gate the value decays in fixed steps toward -inf rather than
// holding the last loud reading.
func (m *Meter) updateDisplay() {
	raw := m.ShortTerm()

	if raw <= m.gate {
		m.displayed -= gateDecayStep
		return
	}

	m.displayed += m.smoothing * (raw - m.displayed)
}

func toLUFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return math.Inf(-1)
	}

	return -0.691 + 10.0*math.Log10(meanSquare)
}
