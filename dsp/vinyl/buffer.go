// Package vinyl provides a variable-speed playback buffer. Incoming
// audio is appended at a fixed rate while a fractional read cursor
// drains it at a smoothed, user-controlled playback rate, like a
// turntable platter whose speed is independent of the cutting lathe.
package vinyl

import (
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/core"
	"github.com/YarinCardillo/patina/dsp/rt"
)

const (
	defaultInitialSeconds = 30.0
	defaultCeilingSeconds = 180.0

	minPlaybackRate = 0.5
	maxPlaybackRate = 2.0

	rateSmoothSeconds = 0.05

	// Growth trips when the backlog passes this share of capacity.
	growThreshold = 0.8

	// At the capacity ceiling the backlog is drained instead of grown:
	// past this share the effective rate is forced to at least
	// backpressureRate.
	backpressureThreshold = 0.9
	backpressureRate      = 1.5

	// Below this many buffered frames the stage outputs the dry input
	// instead of reading stale history.
	underrunFrames = 2

	commandQueueCapacity   = 16
	telemetryQueueCapacity = 16

	// Telemetry goes out roughly once per this many blocks.
	telemetryBlockInterval = 100
)

// Command is a control-side request consumed on the render thread.
type Command uint8

const (
	// CommandFlush snaps the read cursor to the write cursor, discarding
	// the backlog without reallocating.
	CommandFlush Command = iota + 1
)

// Stats is a telemetry snapshot of the buffer.
type Stats struct {
	BacklogSeconds      float64
	BufferUtilization   float64
	CurrentPlaybackRate float64
}

// BufferOption mutates construction-time parameters.
type BufferOption func(*bufferConfig) error

type bufferConfig struct {
	initialSeconds float64
	ceilingSeconds float64
	rate           float64
}

// WithInitialSeconds sets the initial buffer capacity in seconds.
func WithInitialSeconds(seconds float64) BufferOption {
	return func(cfg *bufferConfig) error {
		if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("vinyl initial capacity must be > 0 s: %f", seconds)
		}

		cfg.initialSeconds = seconds

		return nil
	}
}

// WithCeilingSeconds sets the maximum buffer capacity in seconds.
func WithCeilingSeconds(seconds float64) BufferOption {
	return func(cfg *bufferConfig) error {
		if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("vinyl capacity ceiling must be > 0 s: %f", seconds)
		}

		cfg.ceilingSeconds = seconds

		return nil
	}
}

// WithPlaybackRate sets the initial target playback rate in [0.5, 2.0].
func WithPlaybackRate(rate float64) BufferOption {
	return func(cfg *bufferConfig) error {
		if rate < minPlaybackRate || rate > maxPlaybackRate || math.IsNaN(rate) {
			return fmt.Errorf("vinyl playback rate must be in [%f, %f]: %f",
				minPlaybackRate, maxPlaybackRate, rate)
		}

		cfg.rate = rate

		return nil
	}
}

// Buffer is a large adaptively-grown circular buffer read at a variable
// rate. All channels share one write cursor and one fractional read
// cursor. When the backlog outgrows the buffer, capacity doubles up to
// a ceiling via an allocate-copy-swap that preserves the backlog and
// the read cursor's fractional offset; at the ceiling an explicit
// backpressure policy speeds playback up rather than overflowing.
type Buffer struct {
	sampleRate float64
	channels   int

	data     [][]float64
	capacity int
	ceiling  int

	write int
	read  float64

	rate     core.SmoothedParam
	lastRate float64

	commands  *rt.Queue[Command]
	telemetry *rt.Queue[Stats]

	blockCount int
}

// NewBuffer creates a variable-speed buffer for the given channel count.
func NewBuffer(sampleRate float64, channels int, opts ...BufferOption) (*Buffer, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("vinyl sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("vinyl channels must be > 0: %d", channels)
	}

	cfg := bufferConfig{
		initialSeconds: defaultInitialSeconds,
		ceilingSeconds: defaultCeilingSeconds,
		rate:           1.0,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.ceilingSeconds < cfg.initialSeconds {
		return nil, fmt.Errorf("vinyl capacity ceiling %f s is below initial capacity %f s",
			cfg.ceilingSeconds, cfg.initialSeconds)
	}

	capacity := int(math.Ceil(cfg.initialSeconds * sampleRate))
	ceiling := int(math.Ceil(cfg.ceilingSeconds * sampleRate))

	if capacity < underrunFrames+2 {
		capacity = underrunFrames + 2
	}

	if ceiling < capacity {
		ceiling = capacity
	}

	commands, err := rt.NewQueue[Command](commandQueueCapacity)
	if err != nil {
		return nil, err
	}

	telemetry, err := rt.NewQueue[Stats](telemetryQueueCapacity)
	if err != nil {
		return nil, err
	}

	b := &Buffer{
		sampleRate: sampleRate,
		channels:   channels,
		data:       make([][]float64, channels),
		capacity:   capacity,
		ceiling:    ceiling,
		rate:       core.NewSmoothedParam(cfg.rate, rateSmoothSeconds, sampleRate),
		lastRate:   cfg.rate,
		commands:   commands,
		telemetry:  telemetry,
	}

	for ch := range b.data {
		b.data[ch] = make([]float64, capacity)
	}

	return b, nil
}

// SetTargetRate sets the target playback rate in [0.5, 2.0]. The
// working rate glides toward it.
func (b *Buffer) SetTargetRate(rate float64) error {
	if rate < minPlaybackRate || rate > maxPlaybackRate || math.IsNaN(rate) {
		return fmt.Errorf("vinyl playback rate must be in [%f, %f]: %f",
			minPlaybackRate, maxPlaybackRate, rate)
	}

	b.rate.SetTarget(rate)

	return nil
}

// TargetRate returns the target playback rate.
func (b *Buffer) TargetRate() float64 { return b.rate.Target() }

// SampleRate returns sample rate in Hz.
func (b *Buffer) SampleRate() float64 { return b.sampleRate }

// Channels returns the channel count.
func (b *Buffer) Channels() int { return b.channels }

// Capacity returns the current capacity in frames.
func (b *Buffer) Capacity() int { return b.capacity }

// Flush requests a backlog discard from the control side. The request
// is applied at the start of the next processed block; it never blocks.
func (b *Buffer) Flush() bool {
	return b.commands.TryPush(CommandFlush)
}

// PollStats returns the most recent asynchronous telemetry snapshot, if
// one is pending. Safe to call from the control side.
func (b *Buffer) PollStats() (Stats, bool) {
	return b.telemetry.TryPop()
}

// Stats computes a telemetry snapshot on demand.
func (b *Buffer) Stats() Stats {
	backlog := b.backlog()

	return Stats{
		BacklogSeconds:      float64(backlog) / b.sampleRate,
		BufferUtilization:   float64(backlog) / float64(b.capacity),
		CurrentPlaybackRate: b.lastRate,
	}
}

// Reset clears the buffer, cursors, and pending commands.
func (b *Buffer) Reset() {
	for ch := range b.data {
		for i := range b.data[ch] {
			b.data[ch][i] = 0
		}
	}

	b.write = 0
	b.read = 0
	b.rate.Snap()
	b.lastRate = b.rate.Value()
	b.blockCount = 0

	for {
		if _, ok := b.commands.TryPop(); !ok {
			break
		}
	}
}

// backlog returns the buffered-but-unplayed frame count.
func (b *Buffer) backlog() int {
	backlog := (b.write - int(b.read)) % b.capacity
	if backlog < 0 {
		backlog += b.capacity
	}

	return backlog
}

// ProcessBlock appends the input block and reads it back at the current
// playback rate.
func (b *Buffer) ProcessBlock(in, out [][]float64) bool {
	b.drainCommands()

	if len(in) == 0 {
		for ch := range out {
			for i := range out[ch] {
				out[ch][i] = 0
			}
		}

		return true
	}

	frames := len(in[0])

	for i := 0; i < frames; i++ {
		b.writeFrame(in, i)
		b.growIfNeeded()

		rate := b.rate.Next()
		backlog := b.backlog()

		if b.capacity >= b.ceiling && float64(backlog) > backpressureThreshold*float64(b.capacity) {
			if rate < backpressureRate {
				rate = backpressureRate
			}
		}

		b.lastRate = rate

		if backlog < underrunFrames {
			// Not enough history; pass the dry frame for a smooth recovery.
			for ch := range out {
				src := in[len(in)-1]
				if ch < len(in) {
					src = in[ch]
				}

				out[ch][i] = src[i]
			}

			continue
		}

		b.readFrame(out, i, rate)
	}

	b.blockCount++
	if b.blockCount%telemetryBlockInterval == 0 {
		b.telemetry.TryPush(b.Stats())
	}

	return true
}

func (b *Buffer) drainCommands() {
	for {
		cmd, ok := b.commands.TryPop()
		if !ok {
			return
		}

		switch cmd {
		case CommandFlush:
			b.read = float64(b.write)
			if b.read >= float64(b.capacity) {
				b.read -= float64(b.capacity)
			}
		}
	}
}

func (b *Buffer) writeFrame(in [][]float64, i int) {
	for ch := range b.data {
		src := in[len(in)-1]
		if ch < len(in) {
			src = in[ch]
		}

		b.data[ch][b.write] = src[i]
	}

	b.write++
	if b.write >= b.capacity {
		b.write = 0
	}
}

func (b *Buffer) readFrame(out [][]float64, i int, rate float64) {
	i0 := int(b.read)
	i1 := i0 + 1
	if i1 >= b.capacity {
		i1 = 0
	}

	frac := b.read - float64(i0)

	for ch := range out {
		data := b.data[len(b.data)-1]
		if ch < len(b.data) {
			data = b.data[ch]
		}

		out[ch][i] = data[i0]*(1-frac) + data[i1]*frac
	}

	b.read += rate
	if b.read >= float64(b.capacity) {
		b.read -= float64(b.capacity)
	}
}

// growIfNeeded doubles capacity once the backlog passes the growth
// threshold. Growth is an allocate-copy-swap on the render thread: the
// backlog is copied in playback order into the head of the new buffer,
// the read cursor keeps only its fractional offset, and the write
// cursor lands on the now-contiguous backlog length. The deadline cost
// is bounded by one copy of the current capacity.
func (b *Buffer) growIfNeeded() {
	if b.capacity >= b.ceiling {
		return
	}

	backlog := b.backlog()
	if float64(backlog) <= growThreshold*float64(b.capacity) {
		return
	}

	newCapacity := b.capacity * 2
	if newCapacity > b.ceiling {
		newCapacity = b.ceiling
	}

	start := int(b.read)
	frac := b.read - float64(start)

	for ch := range b.data {
		fresh := make([]float64, newCapacity)

		for j := 0; j < backlog; j++ {
			idx := start + j
			if idx >= b.capacity {
				idx -= b.capacity
			}

			fresh[j] = b.data[ch][idx]
		}

		b.data[ch] = fresh
	}

	b.capacity = newCapacity
	b.read = frac
	b.write = backlog
}
