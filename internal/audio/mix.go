package audio

import (
	"fmt"

	"github.com/cwbudde/algo-vecmath"
)

// ExpandEnvelope repeats each per-frame gain once per channel so it lines
// up with interleaved samples.
func ExpandEnvelope(env []float64, channels int) []float64 {
	if channels == 1 {
		return env
	}
	out := make([]float64, len(env)*channels)
	for i, g := range env {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = g
		}
	}
	return out
}

// Scaled returns src multiplied frame by frame by env. len(env) must equal
// src.Frames().
func Scaled(src *Buffer, env []float64) (*Buffer, error) {
	if len(env) != src.Frames() {
		return nil, fmt.Errorf("envelope has %d gains for %d frames", len(env), src.Frames())
	}
	out := NewBuffer(src.Frames(), src.SampleRate, src.Channels)
	if len(env) == 0 {
		return out, nil
	}
	vecmath.MulBlock(out.Samples, src.Samples, ExpandEnvelope(env, src.Channels))
	return out, nil
}

// AddInto accumulates src into dst. Both must have the same format and length.
// Nothing is clipped.
func AddInto(dst, src *Buffer) error {
	if !dst.Compatible(src) {
		return fmt.Errorf("format mismatch: %d Hz/%d ch vs %d Hz/%d ch",
			dst.SampleRate, dst.Channels, src.SampleRate, src.Channels)
	}
	if len(dst.Samples) != len(src.Samples) {
		return fmt.Errorf("length mismatch: %d vs %d frames", dst.Frames(), src.Frames())
	}
	if len(src.Samples) == 0 {
		return nil
	}
	vecmath.AddBlockInPlace(dst.Samples, src.Samples)
	return nil
}

// Peak returns the largest absolute sample value. Values above 1.0 will clip
// when the buffer is encoded.
func Peak(b *Buffer) float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
