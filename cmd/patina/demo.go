package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	demoSampleRate = 48000
	demoChannels   = 2
	demoBlockSize  = 512
)

type demoCmd struct {
	Seconds float64 `default:"10" help:"Playback duration in seconds."`
	Freq    float64 `default:"220" help:"Test tone frequency in Hz."`

	chainFlags
}

func (c *demoCmd) Run() error {
	if c.Seconds <= 0 {
		return fmt.Errorf("duration must be > 0 s: %f", c.Seconds)
	}

	if c.Freq <= 0 || c.Freq >= demoSampleRate/2 {
		return fmt.Errorf("tone frequency must be in (0, %d) Hz: %f", demoSampleRate/2, c.Freq)
	}

	ch, err := newChain(demoSampleRate, demoChannels, demoBlockSize, c.chainFlags)
	if err != nil {
		return err
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   demoSampleRate,
		ChannelCount: demoChannels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return fmt.Errorf("audio device: %w", err)
	}
	<-ready

	src := &toneReader{
		chain:     ch,
		freq:      c.Freq,
		remaining: int(c.Seconds * demoSampleRate),
		in:        makeBlock(demoChannels, demoBlockSize),
		out:       makeBlock(demoChannels, demoBlockSize),
	}

	player := ctx.NewPlayer(src)
	player.Play()

	for player.IsPlaying() {
		time.Sleep(100 * time.Millisecond)
	}

	if err := player.Close(); err != nil {
		return err
	}

	printLoudness(ch.shortTermLoudness())

	return nil
}

// toneReader synthesizes a sine tone, runs it through the chain block
// by block, and serves the result as interleaved float32 PCM.
type toneReader struct {
	chain *chain

	freq  float64
	phase float64

	remaining int

	in      [][]float64
	out     [][]float64
	pending []byte
}

func (r *toneReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.remaining <= 0 {
			return 0, io.EOF
		}

		r.fill()
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]

	return n, nil
}

func (r *toneReader) fill() {
	frames := demoBlockSize
	if frames > r.remaining {
		frames = r.remaining
	}
	r.remaining -= frames

	step := 2 * math.Pi * r.freq / demoSampleRate

	for i := 0; i < frames; i++ {
		v := 0.5 * math.Sin(r.phase)

		r.phase += step
		if r.phase >= 2*math.Pi {
			r.phase -= 2 * math.Pi
		}

		for ch := 0; ch < demoChannels; ch++ {
			r.in[ch][i] = v
		}
	}

	in := trimBlock(r.in, demoChannels, frames)
	out := trimBlock(r.out, demoChannels, frames)

	r.chain.process(in, out)

	buf := make([]byte, frames*demoChannels*4)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < demoChannels; ch++ {
			v := out[ch][i]
			if v > 1 {
				v = 1
			}
			if v < -1 {
				v = -1
			}

			bits := math.Float32bits(float32(v))
			binary.LittleEndian.PutUint32(buf[(i*demoChannels+ch)*4:], bits)
		}
	}

	r.pending = buf
}
