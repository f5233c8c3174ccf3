package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadFile reads path into a buffer of the requested format. WAV files that
// already match are read natively; anything else goes through ffmpeg.
func LoadFile(ctx context.Context, path string, sampleRate, channels int) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		b, err := ReadWAV(path)
		if err == nil && b.SampleRate == sampleRate && b.Channels == channels {
			return b, nil
		}
	}
	return DecodeFile(ctx, path, sampleRate, channels)
}

// DecodeFile runs FFmpeg to decode any container ffmpeg understands into a
// float buffer at the requested sample rate and channel count. All songs and
// stems of one set are decoded to the same format so builds never need to
// resample.
func DecodeFile(ctx context.Context, path string, sampleRate, channels int) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Drop a trailing partial frame
	frameBytes := 2 * channels
	out = out[:len(out)-len(out)%frameBytes]

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return FromInt16(samples, sampleRate, channels), nil
}

// FromInt16 converts interleaved PCM to a float buffer.
func FromInt16(samples []int16, sampleRate, channels int) *Buffer {
	const scale = 1.0 / 32768.0
	b := &Buffer{
		Samples:    make([]float64, len(samples)),
		SampleRate: sampleRate,
		Channels:   channels,
	}
	for i, s := range samples {
		b.Samples[i] = float64(s) * scale
	}
	return b
}

// ToInt16 converts a float buffer to PCM, clipping to the int16 range.
// This is the only place the module clips; mixing stages keep full headroom.
func ToInt16(b *Buffer) []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		v := s * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
