package loudness

import "github.com/YarinCardillo/patina/dsp/core"

// MeterConfig defines configuration for the loudness meter.
type MeterConfig struct {
	core.ProcessorConfig
	Channels int

	// WindowSeconds is the sliding integration window.
	WindowSeconds float64

	// GateLUFS is the absolute gate; below it the displayed value walks
	// down in fixed steps and the display is pinned on Reset.
	GateLUFS float64

	// DisplaySmoothing is the exponential smoothing factor applied to
	// the displayed value, in (0, 1].
	DisplaySmoothing float64
}

// MeterOption mutates a MeterConfig.
type MeterOption func(*MeterConfig)

// DefaultMeterConfig returns a stereo short-term meter: 3 s window,
// -70 LUFS gate, display smoothing 0.3.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		ProcessorConfig:  core.DefaultProcessorConfig(),
		Channels:         2,
		WindowSeconds:    defaultWindowSeconds,
		GateLUFS:         defaultGateLUFS,
		DisplaySmoothing: defaultDisplaySmoothing,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) MeterOption {
	return func(cfg *MeterConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithChannels sets the number of channels (1 for mono, 2 for stereo).
func WithChannels(channels int) MeterOption {
	return func(cfg *MeterConfig) {
		if channels > 0 {
			cfg.Channels = channels
		}
	}
}

// WithWindowSeconds sets the sliding integration window.
func WithWindowSeconds(seconds float64) MeterOption {
	return func(cfg *MeterConfig) {
		if seconds > 0 {
			cfg.WindowSeconds = seconds
		}
	}
}

// WithGateLUFS sets the absolute gate threshold.
func WithGateLUFS(lufs float64) MeterOption {
	return func(cfg *MeterConfig) {
		if lufs < 0 {
			cfg.GateLUFS = lufs
		}
	}
}

// WithDisplaySmoothing sets the display smoothing factor in (0, 1].
func WithDisplaySmoothing(alpha float64) MeterOption {
	return func(cfg *MeterConfig) {
		if alpha > 0 && alpha <= 1 {
			cfg.DisplaySmoothing = alpha
		}
	}
}

// ApplyMeterOptions applies zero or more options to the default config.
func ApplyMeterOptions(opts ...MeterOption) MeterConfig {
	cfg := DefaultMeterConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}
