package transition

import (
	"errors"
	"testing"
)

func TestExtractSectionUnadjusted(t *testing.T) {
	s := mixSong("a", 120, 44100, 17, 0, Section{"intro", 0, 10}, Section{"chorus", 10, 15}, Section{"outro", 15, 17})
	m, _ := NewTimeMapper(s)

	r, err := ExtractSection(s, m, 1, 0, 0)
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if r.StartSeconds != 10 || r.EndSeconds != 15 {
		t.Errorf("range = [%v, %v), want [10, 15)", r.StartSeconds, r.EndSeconds)
	}
	if r.StartSample != 441000 || r.EndSample != 661500 {
		t.Errorf("samples = [%d, %d), want [441000, 661500)", r.StartSample, r.EndSample)
	}
	if r.Label != "chorus" || r.Index != 1 {
		t.Errorf("got section %d %q, want 1 chorus", r.Index, r.Label)
	}
	if !near(r.Beats(), 10, 1e-9) {
		t.Errorf("Beats = %v, want 10", r.Beats())
	}
}

func TestExtractSectionAdjust(t *testing.T) {
	s := mixSong("a", 120, 1000, 20, 0, Section{"intro", 0, 10}, Section{"chorus", 10, 15}, Section{"outro", 15, 20})
	m, _ := NewTimeMapper(s)

	r, err := ExtractSection(s, m, 1, -2, 3)
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if r.StartSeconds != 9 || r.EndSeconds != 16.5 {
		t.Errorf("range = [%v, %v), want [9, 16.5)", r.StartSeconds, r.EndSeconds)
	}
	if r.AdjustStart != -2 || r.AdjustEnd != 3 {
		t.Errorf("adjust = %d,%d, want -2,3", r.AdjustStart, r.AdjustEnd)
	}
}

func TestExtractSectionStopsAtNeighbours(t *testing.T) {
	s := mixSong("a", 120, 1000, 10, 0, Section{"intro", 0, 3}, Section{"tag", 3, 4}, Section{"verse", 4, 10})
	m, _ := NewTimeMapper(s)

	// Four beats earlier is 2.0s, but the previous section starts at 3.0s.
	r, err := ExtractSection(s, m, 2, -4, 0)
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if r.StartSeconds != 3 {
		t.Errorf("start = %v, want 3 (previous section start)", r.StartSeconds)
	}
	if r.AdjustStart != -4 || r.ShiftStart != -1 {
		t.Errorf("requested %d beats, applied %vs; want -4 and -1s", r.AdjustStart, r.ShiftStart)
	}

	// Four beats later is 5.0s, but the next section ends at 4.0s.
	r, err = ExtractSection(s, m, 0, 0, 4)
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if r.EndSeconds != 4 {
		t.Errorf("end = %v, want 4 (next section end)", r.EndSeconds)
	}
}

func TestExtractSectionCollapse(t *testing.T) {
	s := mixSong("a", 120, 1000, 10, 0, Section{"intro", 0, 3}, Section{"tag", 3, 4}, Section{"verse", 4, 10})
	m, _ := NewTimeMapper(s)

	_, err := ExtractSection(s, m, 1, 4, -4)
	if !errors.Is(err, ErrDegenerateSection) {
		t.Fatalf("err = %v, want DegenerateSection", err)
	}
}

func TestExtractSectionEmptySong(t *testing.T) {
	s := mixSong("empty", 120, 1000, 0, 0, Section{"intro", 0, 10}, Section{"verse", 10, 20})
	m, err := NewTimeMapper(s)
	if err != nil {
		t.Fatalf("NewTimeMapper: %v", err)
	}
	r, err := ExtractSection(s, m, 1, 0, 0)
	if !errors.Is(err, ErrDegenerateSection) {
		t.Fatalf("got %+v, %v; want DegenerateSection", r, err)
	}
}

func TestExtractSectionRejects(t *testing.T) {
	s := mixSong("a", 120, 1000, 10, 0, Section{"intro", 0, 5}, Section{"verse", 5, 10})
	m, _ := NewTimeMapper(s)

	if _, err := ExtractSection(s, m, 2, 0, 0); !errors.Is(err, ErrDegenerateSection) {
		t.Errorf("index out of range: err = %v, want DegenerateSection", err)
	}
	if _, err := ExtractSection(s, m, -1, 0, 0); !errors.Is(err, ErrDegenerateSection) {
		t.Errorf("negative index: err = %v, want DegenerateSection", err)
	}
	if _, err := ExtractSection(s, m, 0, 5, 0); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("adjust beyond 4 beats: err = %v, want InvalidSpec", err)
	}
}

func TestExtractSectionAlwaysInsideSong(t *testing.T) {
	grid := make([]float64, 60)
	for i := range grid {
		grid[i] = float64(i)*0.5 + float64(i%2)*0.02
	}
	s := &Song{
		ID:         "swing",
		TempoBPM:   120,
		BeatGrid:   grid,
		SampleRate: 1000,
		Channels:   1,
		Sections:   []Section{{"intro", 0, 8}, {"verse", 8, 16.2}, {"chorus", 16.2, 24}, {"outro", 24, 30}},
		Mix:        constBuffer(30000, 1000, 1, 0),
	}
	m, err := NewTimeMapper(s)
	if err != nil {
		t.Fatalf("NewTimeMapper: %v", err)
	}

	for idx := range s.Sections {
		for as := -MaxBoundaryAdjust; as <= MaxBoundaryAdjust; as++ {
			for ae := -MaxBoundaryAdjust; ae <= MaxBoundaryAdjust; ae++ {
				r, err := ExtractSection(s, m, idx, as, ae)
				if err != nil {
					if !errors.Is(err, ErrDegenerateSection) {
						t.Errorf("section %d adjust %d,%d: unexpected %v", idx, as, ae, err)
					}
					continue
				}
				if r.StartSeconds < 0 || r.StartSeconds >= r.EndSeconds || r.EndSeconds > m.Duration() {
					t.Errorf("section %d adjust %d,%d: [%v, %v) outside [0, %v]",
						idx, as, ae, r.StartSeconds, r.EndSeconds, m.Duration())
				}
				if r.StartSample < 0 || r.StartSample >= r.EndSample || r.EndSample > s.Frames() {
					t.Errorf("section %d adjust %d,%d: samples [%d, %d) outside song",
						idx, as, ae, r.StartSample, r.EndSample)
				}
			}
		}
	}
}
