// Package delay provides a circular delay line with fractional reads.
package delay

import (
	"fmt"
	"math"

	"github.com/YarinCardillo/patina/dsp/interp"
)

// Line is a circular delay line. The write cursor advances monotonically
// and wraps modulo the buffer size; reads address history relative to it.
type Line struct {
	buffer   []float64
	writePos int
	written  int
}

// New returns a delay line of fixed size in samples.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}
	return &Line{buffer: make([]float64, size)}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// Written returns how many samples have been written since the last Reset,
// capped at the buffer size. Callers use this to avoid reading
// uninitialized history right after construction.
func (d *Line) Written() int {
	return d.written
}

// Write writes one sample and advances the write cursor.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
	if d.written < len(d.buffer) {
		d.written++
	}
}

// Read reads an integer delay in samples. Delay 0 is the most recently
// written sample, so Read(n) yields the input from n samples ago.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	readPos := (d.writePos - 1 - delay) % size
	if readPos < 0 {
		readPos += size
	}
	return d.buffer[readPos]
}

// ReadLinear reads a fractional delay with linear interpolation between
// the two bracketing integer delays.
func (d *Line) ReadLinear(delay float64) float64 {
	delay = d.clampDelay(delay, 2)

	p := int(math.Floor(delay))
	t := delay - float64(p)

	return interp.Linear(t, d.Read(p), d.Read(p+1))
}

// ReadHermite reads a fractional delay with cubic 4-point interpolation.
func (d *Line) ReadHermite(delay float64) float64 {
	delay = d.clampDelay(delay, 3)

	p := int(math.Floor(delay))
	t := delay - float64(p)

	pm1 := p - 1
	if pm1 < 0 {
		pm1 = 0
	}

	return interp.Hermite4(t, d.Read(pm1), d.Read(p), d.Read(p+1), d.Read(p+2))
}

// Reset clears line state.
func (d *Line) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
	d.written = 0
}

func (d *Line) clampDelay(delay float64, margin int) float64 {
	if delay < 0 {
		return 0
	}
	maxDelay := float64(len(d.buffer) - margin)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
