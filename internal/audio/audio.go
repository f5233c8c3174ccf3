package audio

import (
	"fmt"
	"time"
)

// Preview stream format. Rendered transitions are only streamed live when
// they already match it; the engine never resamples.
const (
	PreviewSampleRate = 48000
	PreviewChannels   = 2
	FrameDuration     = 20 * time.Millisecond
	FrameSize         = 960                         // samples per channel per 20ms frame
	FrameSamples      = FrameSize * PreviewChannels // total interleaved samples per frame
	FrameBytes        = FrameSamples * 2            // bytes per frame (int16 = 2 bytes)
)

// Buffer holds interleaved float samples in [-1, 1] nominal range.
// A frame is one sample per channel; offsets in this module are frame indices.
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// NewBuffer returns a zeroed buffer of the given number of frames.
func NewBuffer(frames, sampleRate, channels int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		Samples:    make([]float64, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Silence is NewBuffer under the name callers use for gaps.
func Silence(frames, sampleRate, channels int) *Buffer {
	return NewBuffer(frames, sampleRate, channels)
}

// Frames returns the number of frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Slice returns a view over frames [start, end). The view shares storage
// with b; use Clone before writing to it.
func (b *Buffer) Slice(start, end int) (*Buffer, error) {
	if start < 0 || end > b.Frames() || start > end {
		return nil, fmt.Errorf("slice [%d, %d) out of range for %d frames", start, end, b.Frames())
	}
	return &Buffer{
		Samples:    b.Samples[start*b.Channels : end*b.Channels],
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
	}, nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	s := make([]float64, len(b.Samples))
	copy(s, b.Samples)
	return &Buffer{Samples: s, SampleRate: b.SampleRate, Channels: b.Channels}
}

// Compatible reports whether two buffers share sample rate and channel count.
func (b *Buffer) Compatible(o *Buffer) bool {
	return b.SampleRate == o.SampleRate && b.Channels == o.Channels
}

// TrackInfo identifies a rendered transition queued for preview.
type TrackInfo struct {
	ID    string
	Label string // "Song A / chorus -> Song B / verse"
	Path  string // rendered file on disk, empty if only in memory
}
