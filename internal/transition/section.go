package transition

import "math"

// SectionRange is a section resolved to concrete song positions.
type SectionRange struct {
	Index          int     `json:"index"`
	Label          string  `json:"label"`
	StartSeconds   float64 `json:"start_seconds"`
	EndSeconds     float64 `json:"end_seconds"`
	StartSample    int     `json:"start_sample"`
	EndSample      int     `json:"end_sample"`
	AdjustStart    int     `json:"adjust_start"`
	AdjustEnd      int     `json:"adjust_end"`
	SamplesPerBeat float64 `json:"samples_per_beat"`

	// Boundary moves actually applied, in seconds, after clamping to the
	// neighbouring sections and the song.
	ShiftStart float64 `json:"shift_start"`
	ShiftEnd   float64 `json:"shift_end"`
}

// Frames returns the range length in frames.
func (r SectionRange) Frames() int {
	return r.EndSample - r.StartSample
}

// Beats returns the range length in beats at the mapper's tempo.
func (r SectionRange) Beats() float64 {
	if r.SamplesPerBeat <= 0 {
		return 0
	}
	return float64(r.Frames()) / r.SamplesPerBeat
}

// ExtractSection resolves section index of song, nudged by the given beat
// adjustments, to a clamped frame range. Each boundary may move at most
// MaxBoundaryAdjust beats and never past the start of the previous section
// or the end of the next one.
func ExtractSection(song *Song, m *TimeMapper, index, adjustStart, adjustEnd int) (SectionRange, error) {
	if index < 0 || index >= len(song.Sections) {
		return SectionRange{}, newError(KindDegenerateSection, "section_index",
			"section %d does not exist in %q (%d sections)", index, song.Name(), len(song.Sections))
	}
	for _, adj := range []int{adjustStart, adjustEnd} {
		if adj < -MaxBoundaryAdjust || adj > MaxBoundaryAdjust {
			return SectionRange{}, newError(KindInvalidSpec, "section_boundary_adjust_beats",
				"adjustment %d outside [-%d, %d]", adj, MaxBoundaryAdjust, MaxBoundaryAdjust)
		}
	}

	sec := song.Sections[index]

	lo := m.SecondsAt(sec.Start, -MaxBoundaryAdjust)
	if index > 0 {
		lo = math.Max(lo, song.Sections[index-1].Start)
	}
	hi := m.SecondsAt(sec.End, MaxBoundaryAdjust)
	if index < len(song.Sections)-1 {
		hi = math.Min(hi, song.Sections[index+1].End)
	}

	start := clampRange(m.SecondsAt(sec.Start, float64(adjustStart)), lo, hi)
	end := clampRange(m.SecondsAt(sec.End, float64(adjustEnd)), lo, hi)

	r := SectionRange{
		Index:          index,
		Label:          sec.Label,
		StartSeconds:   start,
		EndSeconds:     end,
		StartSample:    m.ToSample(start),
		EndSample:      m.ToSample(end),
		AdjustStart:    adjustStart,
		AdjustEnd:      adjustEnd,
		SamplesPerBeat: m.SamplesPerBeat(),
		ShiftStart:     start - sec.Start,
		ShiftEnd:       end - sec.End,
	}
	if r.EndSample <= r.StartSample {
		return SectionRange{}, newError(KindDegenerateSection, "section_boundary_adjust_beats",
			"section %d %q collapses to [%.3fs, %.3fs) after adjusting start by %d and end by %d beats",
			index, sec.Label, start, end, adjustStart, adjustEnd)
	}
	return r, nil
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
