// Package stage defines the block-processing contract shared by all
// render-path processors and the bypass/active switching machinery.
package stage

// Processor is the per-block processing contract. Implementations take
// per-channel input blocks and write per-channel output blocks of the
// same length, returning an alive flag that stays true for as long as
// the stage should remain instantiated.
//
// in and out hold one slice per channel. A processor given fewer input
// channels than it was built for duplicates the available channel;
// extra channels are ignored.
type Processor interface {
	ProcessBlock(in, out [][]float64) bool
	Reset()
}

// Bypass copies in to out unchanged, channel by channel. When out has
// more channels than in, the last input channel is duplicated.
func Bypass(in, out [][]float64) {
	if len(in) == 0 {
		for ch := range out {
			zero(out[ch])
		}

		return
	}

	for ch := range out {
		src := in[len(in)-1]
		if ch < len(in) {
			src = in[ch]
		}

		copy(out[ch], src)
	}
}

func zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
