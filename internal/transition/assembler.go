package transition

import (
	"github.com/satindergrewal/segue/internal/audio"
)

// Segment is one piece of an assembled output.
type Segment struct {
	Label  string
	Buffer *audio.Buffer
}

// Boundary locates a segment inside an assembled buffer, in frames.
type Boundary struct {
	Label       string `json:"label"`
	StartSample int    `json:"start_sample"`
	EndSample   int    `json:"end_sample"`
}

// Assembly is a concatenated output with its segment layout.
type Assembly struct {
	Buffer          *audio.Buffer
	DurationSeconds float64
	Boundaries      []Boundary
	PrefixSections  int
	SuffixSections  int
	Metadata        Metadata
}

// Concat appends segments into one buffer. There is no fading at the joins.
// Every segment must share the first segment's sample rate and channel count.
func Concat(segments []Segment) (*Assembly, error) {
	if len(segments) == 0 {
		return nil, newError(KindInvalidSpec, "segments", "nothing to assemble")
	}
	first := segments[0].Buffer
	if first == nil {
		return nil, newError(KindInvalidSpec, "segments", "segment %q has no buffer", segments[0].Label)
	}

	total := 0
	for _, seg := range segments {
		b := seg.Buffer
		if b == nil {
			return nil, newError(KindInvalidSpec, "segments", "segment %q has no buffer", seg.Label)
		}
		if b.SampleRate != first.SampleRate {
			return nil, newError(KindSampleRateMismatch, "segments",
				"segment %q is %d Hz, %q is %d Hz", seg.Label, b.SampleRate, segments[0].Label, first.SampleRate)
		}
		if b.Channels != first.Channels {
			return nil, newError(KindChannelMismatch, "segments",
				"segment %q has %d channels, %q has %d", seg.Label, b.Channels, segments[0].Label, first.Channels)
		}
		total += b.Frames()
	}

	out := audio.NewBuffer(total, first.SampleRate, first.Channels)
	bounds := make([]Boundary, 0, len(segments))
	pos := 0
	for _, seg := range segments {
		copy(out.Samples[pos*out.Channels:], seg.Buffer.Samples)
		bounds = append(bounds, Boundary{Label: seg.Label, StartSample: pos, EndSample: pos + seg.Buffer.Frames()})
		pos += seg.Buffer.Frames()
	}

	return &Assembly{
		Buffer:          out,
		DurationSeconds: out.Duration(),
		Boundaries:      bounds,
		Metadata: Metadata{
			"total_samples":    total,
			"duration_seconds": out.Duration(),
			"segments":         bounds,
		},
	}, nil
}

// AssembleSong wraps a transition with the outgoing song from its start up
// to the transition and the incoming song from the end of the transition to
// its end.
func AssembleSong(from, to *Song, res *Result) (*Assembly, error) {
	if from == nil || to == nil || res == nil {
		return nil, newError(KindInvalidSpec, "assemble", "songs and transition result are required")
	}
	prefix, err := wholeMix(from, 0, res.FromCut)
	if err != nil {
		return nil, err
	}
	suffix, err := wholeMix(to, res.ToResume, to.Frames())
	if err != nil {
		return nil, err
	}

	asm, err := Concat([]Segment{
		{Label: "prefix:" + from.Name(), Buffer: prefix},
		{Label: "transition", Buffer: res.Buffer},
		{Label: "suffix:" + to.Name(), Buffer: suffix},
	})
	if err != nil {
		return nil, err
	}

	asm.PrefixSections = res.From.Index + 1
	asm.SuffixSections = len(to.Sections) - res.To.Index
	asm.Metadata["prefix_sections"] = asm.PrefixSections
	asm.Metadata["suffix_sections"] = asm.SuffixSections
	asm.Metadata["transition_type"] = res.Type.String()
	asm.Metadata["from_section"] = res.From.Label
	asm.Metadata["to_section"] = res.To.Label
	return asm, nil
}
