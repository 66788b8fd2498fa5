package stage

import (
	"fmt"
	"math"
)

const defaultFadeSeconds = 0.05

// State identifies the switcher's position in the bypass/active machine.
type State int

const (
	// StateBypassed passes input through untouched.
	StateBypassed State = iota

	// StateActive runs the wrapped processor.
	StateActive

	// StateTransitioning crossfades between the dry and processed paths.
	StateTransitioning
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateBypassed:
		return "bypassed"
	case StateActive:
		return "active"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// Switcher wraps a Processor with an explicit
// {bypassed, active, transitioning} state machine. Mode changes are
// never instantaneous: both signal paths run in parallel while a linear
// crossfade moves between them, and the crossfade progress is carried
// as plain data.
//
// A nil processor yields a permanent pass-through, which is the
// fallback contract for stages whose inner processor failed to
// construct.
type Switcher struct {
	proc     Processor
	fadeLen  int
	state    State
	fadePos  int
	toActive bool
	wet      [][]float64
}

// NewSwitcher wraps proc with a crossfading bypass switch. The switcher
// starts bypassed; channels and blockSize size the internal wet-path
// scratch buffers.
func NewSwitcher(proc Processor, sampleRate float64, channels, blockSize int) (*Switcher, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("switcher sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("switcher channels must be > 0: %d", channels)
	}

	if blockSize <= 0 {
		return nil, fmt.Errorf("switcher block size must be > 0: %d", blockSize)
	}

	fadeLen := int(math.Round(defaultFadeSeconds * sampleRate))
	if fadeLen < 1 {
		fadeLen = 1
	}

	s := &Switcher{
		proc:    proc,
		fadeLen: fadeLen,
		state:   StateBypassed,
		wet:     make([][]float64, channels),
	}

	for ch := range s.wet {
		s.wet[ch] = make([]float64, blockSize)
	}

	return s, nil
}

// State returns the current switch state.
func (s *Switcher) State() State { return s.state }

// SetActive requests the active (true) or bypassed (false) path. The
// change takes effect through a crossfade; calling it again mid-fade
// reverses the fade from its current position.
func (s *Switcher) SetActive(active bool) {
	if s.proc == nil {
		return
	}

	switch s.state {
	case StateActive:
		if !active {
			s.beginFade(false, 0)
		}
	case StateBypassed:
		if active {
			s.beginFade(true, 0)
		}
	case StateTransitioning:
		if s.toActive != active {
			s.beginFade(active, s.fadeLen-s.fadePos)
		}
	}
}

func (s *Switcher) beginFade(toActive bool, startPos int) {
	s.state = StateTransitioning
	s.toActive = toActive
	s.fadePos = startPos
}

// Reset clears the wrapped processor and snaps any in-flight crossfade
// to its destination.
func (s *Switcher) Reset() {
	if s.proc != nil {
		s.proc.Reset()
	}

	if s.state == StateTransitioning {
		if s.toActive {
			s.state = StateActive
		} else {
			s.state = StateBypassed
		}
	}

	s.fadePos = 0
}

// ProcessBlock routes one block through the state machine.
func (s *Switcher) ProcessBlock(in, out [][]float64) bool {
	if s.proc == nil || s.state == StateBypassed {
		Bypass(in, out)
		return true
	}

	if s.state == StateActive {
		return s.proc.ProcessBlock(in, out)
	}

	return s.processTransition(in, out)
}

func (s *Switcher) processTransition(in, out [][]float64) bool {
	if len(in) == 0 {
		Bypass(in, out)
		return true
	}

	frames := len(in[0])

	s.ensureScratch(frames)

	alive := s.proc.ProcessBlock(in, s.wet)

	for ch := range out {
		src := in[len(in)-1]
		if ch < len(in) {
			src = in[ch]
		}

		wet := s.wet[len(s.wet)-1]
		if ch < len(s.wet) {
			wet = s.wet[ch]
		}

		pos := s.fadePos
		for i := 0; i < frames; i++ {
			t := float64(pos) / float64(s.fadeLen)
			if t > 1 {
				t = 1
			}

			wetGain := t
			if !s.toActive {
				wetGain = 1 - t
			}

			out[ch][i] = src[i]*(1-wetGain) + wet[i]*wetGain
			pos++
		}
	}

	s.fadePos += frames
	if s.fadePos >= s.fadeLen {
		if s.toActive {
			s.state = StateActive
		} else {
			s.state = StateBypassed
		}

		s.fadePos = 0
	}

	return alive
}

func (s *Switcher) ensureScratch(frames int) {
	for ch := range s.wet {
		if len(s.wet[ch]) < frames {
			s.wet[ch] = make([]float64, frames)
		}
	}
}
