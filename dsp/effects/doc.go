// Package effects provides analog-character audio effects: tube-style
// saturation and tape transport wobble. All processors run sample by
// sample or block by block on float64 audio and allocate nothing in the
// steady state.
package effects
