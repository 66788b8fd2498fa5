package main

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const renderBlockSize = 512

type renderCmd struct {
	In  string `arg:"" type:"existingfile" help:"Input WAV file."`
	Out string `arg:"" type:"path" help:"Output WAV file."`

	chainFlags
}

func (c *renderCmd) Run() error {
	in, err := os.Open(c.In)
	if err != nil {
		return err
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s: not a valid WAV file", c.In)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decode %s: %w", c.In, err)
	}

	sampleRate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	bitDepth := int(dec.BitDepth)

	samples := deinterleave(buf.Data, channels, bitDepth)

	ch, err := newChain(float64(sampleRate), channels, renderBlockSize, c.chainFlags)
	if err != nil {
		return err
	}

	frames := len(samples[0])
	out := makeBlock(channels, frames)

	for start := 0; start < frames; start += renderBlockSize {
		end := start + renderBlockSize
		if end > frames {
			end = frames
		}

		inBlock := make([][]float64, channels)
		outBlock := make([][]float64, channels)
		for i := range inBlock {
			inBlock[i] = samples[i][start:end]
			outBlock[i] = out[i][start:end]
		}

		ch.process(inBlock, outBlock)
	}

	if err := writeWAV(c.Out, out, sampleRate, bitDepth); err != nil {
		return err
	}

	printLoudness(ch.shortTermLoudness())

	return nil
}

// deinterleave converts integer PCM to per-channel float64 in [-1, 1).
func deinterleave(data []int, channels, bitDepth int) [][]float64 {
	frames := len(data) / channels
	scale := float64(int(1) << (bitDepth - 1))

	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = float64(data[i*channels+ch]) / scale
		}
	}

	return out
}

// writeWAV interleaves, clips, and encodes per-channel float64 audio.
func writeWAV(path string, samples [][]float64, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	channels := len(samples)
	frames := len(samples[0])
	scale := float64(int(1) << (bitDepth - 1))
	peak := scale - 1

	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := samples[ch][i] * scale
			if v > peak {
				v = peak
			}
			if v < -scale {
				v = -scale
			}

			data[i*channels+ch] = int(v)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)

	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	return enc.Close()
}
