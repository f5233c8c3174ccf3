package transition

import (
	"github.com/satindergrewal/segue/internal/audio"
)

// Metadata describes how a buffer was built, for display and persistence.
type Metadata map[string]any

// Result is a finished transition. The caller owns Buffer.
type Result struct {
	Buffer          *audio.Buffer
	SampleRate      int
	Channels        int
	DurationSeconds float64
	Type            Type
	From            SectionRange
	To              SectionRange

	// FromCut is the first frame of the outgoing song used by the
	// transition; ToResume is the first frame of the incoming song after it.
	FromCut  int
	ToResume int

	// Part lengths in frames. A gap is tail+gap+head; a crossfade has only
	// the overlap, reported as both tail and head.
	TailFrames int
	GapFrames  int
	HeadFrames int

	Metadata Metadata
}

// Frames returns the transition length in frames.
func (r *Result) Frames() int {
	return r.Buffer.Frames()
}
