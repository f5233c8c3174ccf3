package transition

import (
	"math"
	"sort"
)

// gridEpsilon absorbs float noise when snapping a fractional beat index up
// to the next grid position.
const gridEpsilon = 1e-9

// TimeMapper converts beat offsets into song time. With a beat grid it
// follows the performed beats; without one it uses the constant tempo.
type TimeMapper struct {
	grid       []float64
	tempo      float64
	duration   float64
	sampleRate int
	frames     int
}

// NewTimeMapper returns a mapper for s. It fails with InvalidTempo when
// neither a finite positive tempo nor a usable beat grid is present. A
// non-finite tempo counts as unknown.
func NewTimeMapper(s *Song) (*TimeMapper, error) {
	tempo := s.TempoBPM
	if !validTempo(tempo) {
		tempo = 0
	}
	if tempo == 0 && len(s.BeatGrid) < 2 {
		return nil, newError(KindInvalidTempo, "tempo_bpm",
			"tempo %v BPM and %d grid beats: cannot map beats to time", s.TempoBPM, len(s.BeatGrid))
	}
	for i, t := range s.BeatGrid {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, newError(KindInvalidTempo, "beat_grid", "beat %d is %v", i, t)
		}
	}
	return &TimeMapper{
		grid:       s.BeatGrid,
		tempo:      tempo,
		duration:   s.Duration(),
		sampleRate: s.SampleRate,
		frames:     s.Frames(),
	}, nil
}

// BeatSeconds is the length of one beat: 60/tempo, or the mean grid
// interval when the tempo is unknown.
func (m *TimeMapper) BeatSeconds() float64 {
	if m.tempo > 0 {
		return 60.0 / m.tempo
	}
	n := len(m.grid)
	return (m.grid[n-1] - m.grid[0]) / float64(n-1)
}

// TempoBPM is the tempo the mapper uses for constant-tempo conversions.
func (m *TimeMapper) TempoBPM() float64 {
	return 60.0 / m.BeatSeconds()
}

// SamplesPerBeat is BeatSeconds at the song's sample rate.
func (m *TimeMapper) SamplesPerBeat() float64 {
	return m.BeatSeconds() * float64(m.sampleRate)
}

// Duration is the song length in seconds.
func (m *TimeMapper) Duration() float64 {
	return m.duration
}

// SecondsAt returns the song time reached by moving beats away from ref.
// A zero offset returns ref itself (clamped) so unadjusted boundaries stay
// where the analysis put them.
func (m *TimeMapper) SecondsAt(ref, beats float64) float64 {
	return m.clamp(m.offset(ref, beats))
}

// offset is SecondsAt without clamping to the song.
func (m *TimeMapper) offset(ref, beats float64) float64 {
	if beats == 0 {
		return ref
	}
	if len(m.grid) == 0 {
		return ref + beats*m.BeatSeconds()
	}
	return m.walkGrid(ref, beats)
}

// SampleAt is SecondsAt converted to a frame index.
func (m *TimeMapper) SampleAt(ref, beats float64) int {
	return m.ToSample(m.SecondsAt(ref, beats))
}

// ToSample converts seconds to the nearest frame index within [0, frames].
func (m *TimeMapper) ToSample(sec float64) int {
	n := int(math.Round(sec * float64(m.sampleRate)))
	if n < 0 {
		return 0
	}
	if n > m.frames {
		return m.frames
	}
	return n
}

// walkGrid starts from the grid beat nearest ref and steps beats grid
// positions, taking the first grid timestamp at or after a fractional
// target. Targets beyond the grid extrapolate with the beat period.
func (m *TimeMapper) walkGrid(ref, beats float64) float64 {
	start := m.nearestBeat(ref)
	target := float64(start) + beats
	idx := int(math.Ceil(target - gridEpsilon))

	last := len(m.grid) - 1
	switch {
	case idx < 0:
		return m.grid[0] + target*m.BeatSeconds()
	case idx > last:
		return m.grid[last] + (target-float64(last))*m.BeatSeconds()
	default:
		return m.grid[idx]
	}
}

// nearestBeat returns the grid index closest to t.
func (m *TimeMapper) nearestBeat(t float64) int {
	i := sort.SearchFloat64s(m.grid, t)
	if i == 0 {
		return 0
	}
	if i == len(m.grid) {
		return len(m.grid) - 1
	}
	if t-m.grid[i-1] <= m.grid[i]-t {
		return i - 1
	}
	return i
}

func (m *TimeMapper) clamp(sec float64) float64 {
	if sec < 0 {
		return 0
	}
	if sec > m.duration {
		return m.duration
	}
	return sec
}

func validTempo(bpm float64) bool {
	return bpm > 0 && !math.IsInf(bpm, 0)
}
