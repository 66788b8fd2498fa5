package core

import (
	"fmt"
	"math"
)

// OnePoleCoeff converts a time constant in seconds to a one-pole smoothing
// coefficient for the recurrence y[n] = y[n-1] + coeff*(x[n]-y[n-1]).
//
// Derived from 1 - exp(-1/(seconds*sampleRate)). A non-positive time
// constant yields 1 (no smoothing).
func OnePoleCoeff(seconds, sampleRate float64) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 1
	}

	coeff := 1.0 - math.Exp(-1.0/(seconds*sampleRate))
	if coeff < 0 {
		return 0
	}

	if coeff > 1 {
		return 1
	}

	return coeff
}

// EnvelopeFollower tracks signal level with an asymmetric one-pole filter:
// the attack coefficient applies while the input rises above the envelope,
// the release coefficient while it falls.
type EnvelopeFollower struct {
	attackCoeff  float64
	releaseCoeff float64
	envelope     float64
}

// NewEnvelopeFollower creates a follower with the given attack and release
// time constants in seconds.
func NewEnvelopeFollower(attackSeconds, releaseSeconds, sampleRate float64) (*EnvelopeFollower, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("envelope follower sample rate must be > 0: %f", sampleRate)
	}

	if attackSeconds < 0 || releaseSeconds < 0 {
		return nil, fmt.Errorf("envelope follower times must be >= 0: attack=%f release=%f",
			attackSeconds, releaseSeconds)
	}

	return &EnvelopeFollower{
		attackCoeff:  OnePoleCoeff(attackSeconds, sampleRate),
		releaseCoeff: OnePoleCoeff(releaseSeconds, sampleRate),
	}, nil
}

// ProcessSample advances the envelope with one input sample and returns the
// updated envelope value. The input is expected to be non-negative
// (rectify before calling).
func (e *EnvelopeFollower) ProcessSample(x float64) float64 {
	coeff := e.releaseCoeff
	if x > e.envelope {
		coeff = e.attackCoeff
	}

	e.envelope += coeff * (x - e.envelope)
	e.envelope = FlushDenormals(e.envelope)

	return e.envelope
}

// Value returns the current envelope value without advancing it.
func (e *EnvelopeFollower) Value() float64 { return e.envelope }

// Reset clears the envelope to zero.
func (e *EnvelopeFollower) Reset() { e.envelope = 0 }

// SmoothedParam moves a value toward a target with one-pole smoothing.
// Used on the render thread to de-zipper control-side parameter writes.
type SmoothedParam struct {
	value  float64
	target float64
	coeff  float64
}

// NewSmoothedParam creates a smoother with the given time constant.
func NewSmoothedParam(initial, seconds, sampleRate float64) SmoothedParam {
	return SmoothedParam{
		value:  initial,
		target: initial,
		coeff:  OnePoleCoeff(seconds, sampleRate),
	}
}

// SetTarget updates the target the value moves toward.
func (s *SmoothedParam) SetTarget(target float64) { s.target = target }

// Target returns the current target.
func (s *SmoothedParam) Target() float64 { return s.target }

// Next advances the smoother one sample and returns the new value.
func (s *SmoothedParam) Next() float64 {
	s.value += s.coeff * (s.target - s.value)
	return s.value
}

// Value returns the current value without advancing.
func (s *SmoothedParam) Value() float64 { return s.value }

// Snap jumps the value to the target immediately.
func (s *SmoothedParam) Snap() { s.value = s.target }
