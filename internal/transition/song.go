package transition

import (
	"math"
	"sort"

	"github.com/satindergrewal/segue/internal/audio"
)

// Section is a labeled region of a song in seconds.
type Section struct {
	Label string  `json:"label"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns the section length in seconds.
func (s Section) Length() float64 {
	return s.End - s.Start
}

// StemSet maps a stem name ("vocals", "bass", "drums", "other") to its
// buffer. All stems of a set share length, rate and channel count.
type StemSet map[string]*audio.Buffer

// Names returns the stem names in sorted order.
func (s StemSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Song is the engine's read-only view of one analysed song. Either Mix or
// Stems (or both) must be set.
type Song struct {
	ID         string
	Title      string
	TempoBPM   float64
	BeatGrid   []float64 // beat onsets in seconds, strictly increasing
	SampleRate int
	Channels   int
	Sections   []Section
	Mix        *audio.Buffer
	Stems      StemSet
}

// Name is the title when set, else the ID.
func (s *Song) Name() string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}

// Frames returns the audio length in frames, taken from the mix or, when
// there is none, from any stem.
func (s *Song) Frames() int {
	if s.Mix != nil {
		return s.Mix.Frames()
	}
	for _, name := range s.Stems.Names() {
		return s.Stems[name].Frames()
	}
	return 0
}

// Duration returns the audio length in seconds.
func (s *Song) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// HasStems reports whether stem buffers are attached.
func (s *Song) HasStems() bool {
	return len(s.Stems) > 0
}

// validate checks the data-model invariants the engine relies on. Musical
// correctness of the analysis is trusted.
func (s *Song) validate(param string) error {
	if math.IsNaN(s.TempoBPM) || math.IsInf(s.TempoBPM, 0) {
		return newError(KindInvalidTempo, param+".tempo_bpm", "tempo %v BPM is not finite", s.TempoBPM)
	}
	if s.TempoBPM <= 0 && len(s.BeatGrid) < 2 {
		return newError(KindInvalidTempo, param+".tempo_bpm",
			"tempo %.2f BPM with %d grid beats", s.TempoBPM, len(s.BeatGrid))
	}
	for i, t := range s.BeatGrid {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return newError(KindInvalidTempo, param+".beat_grid", "beat %d is %v", i, t)
		}
	}
	for i := 1; i < len(s.BeatGrid); i++ {
		if s.BeatGrid[i] <= s.BeatGrid[i-1] {
			return newError(KindInvalidTempo, param+".beat_grid",
				"beat grid not strictly increasing at index %d (%.3fs after %.3fs)", i, s.BeatGrid[i], s.BeatGrid[i-1])
		}
	}
	for i, sec := range s.Sections {
		if sec.End <= sec.Start {
			return newError(KindDegenerateSection, param+".sections",
				"section %d %q ends at %.3fs, not after its start %.3fs", i, sec.Label, sec.End, sec.Start)
		}
	}
	if s.Mix == nil && len(s.Stems) == 0 {
		return newError(KindStemMismatch, param, "song %q has neither a mix nor stems", s.Name())
	}
	if s.Mix != nil {
		if err := s.checkFormat(param+".mix", s.Mix); err != nil {
			return err
		}
	}
	return s.validateStems(param)
}

func (s *Song) checkFormat(param string, b *audio.Buffer) error {
	if b.SampleRate != s.SampleRate {
		return newError(KindSampleRateMismatch, param,
			"buffer is %d Hz, song declares %d Hz", b.SampleRate, s.SampleRate)
	}
	if b.Channels != s.Channels {
		return newError(KindChannelMismatch, param,
			"buffer has %d channels, song declares %d", b.Channels, s.Channels)
	}
	return nil
}

func (s *Song) validateStems(param string) error {
	if len(s.Stems) == 0 {
		return nil
	}
	frames := -1
	for _, name := range s.Stems.Names() {
		b := s.Stems[name]
		if b == nil {
			return newError(KindStemMismatch, param+".stems."+name, "stem buffer is missing")
		}
		if b.SampleRate != s.SampleRate || b.Channels != s.Channels {
			return newError(KindStemMismatch, param+".stems."+name,
				"stem is %d Hz/%d ch, song is %d Hz/%d ch", b.SampleRate, b.Channels, s.SampleRate, s.Channels)
		}
		if frames >= 0 && b.Frames() != frames {
			return newError(KindStemMismatch, param+".stems."+name,
				"stem has %d frames, other stems have %d", b.Frames(), frames)
		}
		frames = b.Frames()
	}
	if s.Mix != nil && s.Mix.Frames() != frames {
		return newError(KindStemMismatch, param+".stems",
			"stems have %d frames, mix has %d", frames, s.Mix.Frames())
	}
	return nil
}
